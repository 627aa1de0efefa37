// Package dumpsift analyses Samsung/Android diagnostic artifacts
// (bugreports, logcat buffers, kernel logs, ANR traces, tombstones and
// dropbox entries) and reports a time-ordered event stream, fingerprinted
// signature groups, known-issue rule matches and an incident summary with a
// suspected subsystem.
//
// Quick start:
//
//	a, err := dumpsift.New(dumpsift.WithWorkers(8))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer a.Close()
//
//	report, err := a.AnalyzeFiles(ctx, "bugreport-SM-S928.txt", "FS/data/anr/")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(report.Incident.SuspectedSubsystem) // Apps/Framework
//
// An Analyzer is safe for concurrent use. Create once, reuse across cases.
package dumpsift
