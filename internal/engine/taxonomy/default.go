package taxonomy

import "github.com/crimson-sun/dumpsift/internal/model"

// DefaultRoots returns the built-in subsystem tree. Components are
// case-insensitive tag prefixes.
func DefaultRoots() []*model.TaxonomyNode {
	return []*model.TaxonomyNode{
		{
			Name: "Apps",
			Desc: "Applications and the Android framework",
			Children: []*model.TaxonomyNode{
				{
					Name: "Framework",
					Desc: "system_server services and app runtime",
					Components: []string{
						"ActivityManager", "ActivityTaskManager", "AndroidRuntime", "ActivityThread",
						"WindowManager", "PackageManager", "InputDispatcher", "Choreographer",
						"Watchdog", "system_server", "DropBoxManagerService",
					},
					Sources: []model.Source{model.SourceANR, model.SourceDropbox},
				},
			},
		},
		{
			Name:       "Native",
			Desc:       "Native daemons and crash handling",
			Components: []string{"DEBUG", "libc", "crash_dump", "tombstoned", "init"},
			Sources:    []model.Source{model.SourceTombstone},
		},
		{
			Name:    "Kernel",
			Desc:    "Linux kernel and drivers",
			Sources: []model.Source{model.SourceKernel},
			Children: []*model.TaxonomyNode{
				{Name: "Memory", Desc: "Memory pressure and process kills", Components: []string{"lowmemorykiller", "lmkd", "oom_reaper", "Out of memory", "kswapd"}},
				{Name: "Storage", Desc: "Filesystems and block devices", Components: []string{"f2fs", "ext4", "EXT4-fs", "F2FS-fs", "mmc", "ufshcd", "vold", "StorageManager"}},
			},
		},
		{
			Name:       "Telephony",
			Desc:       "Radio interface, modem and IMS",
			Components: []string{"RILJ", "RILD", "RIL", "SecRIL", "cbd", "CPBoot", "Telephony", "ImsService", "Telecom", "GsmCdmaPhone"},
			Sources:    []model.Source{model.SourceLogcatRadio},
		},
		{
			Name: "Connectivity",
			Desc: "Wireless and network stacks",
			Children: []*model.TaxonomyNode{
				{Name: "Wi-Fi", Desc: "Wi-Fi framework, supplicant and driver", Components: []string{"WifiService", "WifiStateMachine", "ClientModeImpl", "wpa_supplicant", "WifiHAL", "wlan", "dhd"}},
				{Name: "Bluetooth", Desc: "Bluetooth stack", Components: []string{"bt_", "Bluetooth"}},
				{Name: "NFC", Desc: "NFC and secure element", Components: []string{"Nfc", "NxpNfc", "SecNfc"}},
				{Name: "Network", Desc: "Connectivity service and DNS", Components: []string{"ConnectivityService", "netd", "DnsResolver", "NetworkMonitor"}},
			},
		},
		{
			Name: "Multimedia",
			Desc: "Camera and audio",
			Children: []*model.TaxonomyNode{
				{Name: "Camera", Desc: "Camera service and HAL", Components: []string{"CameraService", "Camera3-", "CameraDevice", "CamX", "CHIUSECASE", "SecCamera"}},
				{Name: "Audio", Desc: "Audio framework and HAL", Components: []string{"AudioFlinger", "AudioPolicy", "audio_hw", "AudioService"}},
			},
		},
		{
			Name: "Power",
			Desc: "Battery, charging and thermal management",
			Children: []*model.TaxonomyNode{
				{Name: "Thermal", Desc: "Thermal throttling and shutdown", Components: []string{"thermal", "SSRM", "tsens"}},
				{Name: "Battery", Desc: "Battery, charger and power manager", Components: []string{"BatteryService", "healthd", "charger", "PowerManagerService"}},
			},
		},
		{
			Name: "UI",
			Desc: "Display pipeline and System UI",
			Children: []*model.TaxonomyNode{
				{Name: "Display", Desc: "Composition and display", Components: []string{"SurfaceFlinger", "hwcomposer", "DisplayManager"}},
				{Name: "SystemUI", Desc: "Status bar, notifications and launcher", Components: []string{"SystemUI", "NotificationService", "StatusBar", "Launcher"}},
			},
		},
	}
}

// Issue category names.
const (
	CategoryCrash        = "Crash Issue"
	CategoryCamera       = "Camera Issue"
	CategoryBluetooth    = "Bluetooth Issue"
	CategoryNFC          = "NFC Issue"
	CategoryNotification = "Notification Issue"
	CategoryUI           = "UI Issue"
	CategoryAudio        = "Audio Issue"
	CategoryWiFi         = "Wi-Fi Issue"
	CategoryMobile       = "Mobile Network Issue"
	CategoryBattery      = "Battery/Thermal Issue"
	CategoryOther        = "Other"
)

// DefaultCategories returns the built-in issue categories. The first one is
// the crash category, which dominates when it scores.
func DefaultCategories() []model.CategoryDef {
	return []model.CategoryDef{
		{
			Name: CategoryCrash,
			Desc: "App or system crash, ANR or fatal signal",
			Keywords: []string{
				"crash", "crashes", "crashed", "crashing",
				"stopped working", "keeps stopping", "has stopped", "stops working",
				"force close", "force-close", "force stop", "force-stop",
				"stopped responding", "unfortunately", "app stopped", "app has stopped",
				"anr", "application not responding", "fatal exception", "fatal signal",
				"sigsegv", "sigabrt", "java.lang.", "nullpointerexception", "tombstone",
			},
		},
		{
			Name: CategoryCamera,
			Desc: "Camera capture, preview or scanning",
			Keywords: []string{
				"camera", "cam", "selfie", "rear camera", "front camera", "photo", "video",
				"record", "capture", "shutter", "focus", "hdr", "portrait", "night mode",
				"pro mode", "qr", "barcode", "scan", "camera search",
			},
		},
		{
			Name: CategoryBluetooth,
			Desc: "Bluetooth pairing and audio devices",
			Keywords: []string{
				"bluetooth", "bt", "pair", "pairing", "paired", "connect", "connected", "disconnect",
				"disconnected", "a2dp", "hfp", "ble", "earbuds", "buds", "headset",
			},
		},
		{
			Name: CategoryNFC,
			Desc: "NFC payments and secure element",
			Keywords: []string{
				"nfc", "tap to pay", "contactless", "samsung pay", "google pay",
				"secure element", "se", "host card emulation", "hce",
			},
		},
		{
			Name: CategoryNotification,
			Desc: "Notification delivery and presentation",
			Keywords: []string{
				"notification", "notifications", "push", "badge", "badges", "heads-up", "banner",
				"silent notification", "no notification", "do not disturb", "dnd", "blocked notifications",
			},
		},
		{
			Name: CategoryUI,
			Desc: "Screen, layout, input and responsiveness",
			Keywords: []string{
				"ui", "one ui", "screen", "display", "layout", "button", "icon", "gesture",
				"freeze", "frozen", "stuck", "lag", "stutter", "animation", "render", "touch",
				"tap", "scroll", "scrolling", "ui bug", "ui issue",
			},
		},
		{
			Name: CategoryAudio,
			Desc: "Speaker, microphone and audio routing",
			Keywords: []string{
				"audio", "sound", "speaker", "microphone", "mic", "volume", "no sound",
				"audioflinger", "echo", "call audio", "ringtone",
			},
		},
		{
			Name: CategoryWiFi,
			Desc: "Wi-Fi connection and hotspot",
			Keywords: []string{
				"wifi", "wi-fi", "wlan", "hotspot", "access point", "wpa_supplicant",
				"ssid", "router", "wifi disconnect",
			},
		},
		{
			Name: CategoryMobile,
			Desc: "Cellular signal, calls and data",
			Keywords: []string{
				"no signal", "no service", "sim", "lte", "5g", "volte", "ims", "modem",
				"ril", "mobile data", "call drop", "dropped call", "baseband", "network registration",
			},
		},
		{
			Name: CategoryBattery,
			Desc: "Battery drain, charging and overheating",
			Keywords: []string{
				"battery", "drain", "charging", "charger", "overheat", "overheating", "hot",
				"thermal", "throttling", "wakelock", "power",
			},
		},
	}
}
