package rules

const (
	// SelfPackage is the tracking app's own package identifier.
	SelfPackage = "com.usageledger.app"

	// OfflinePrefix starts virtual offline-activity packages; the remainder
	// is the category name, e.g. "com.usageledger.offline.fitness".
	OfflinePrefix = "com.usageledger.offline."

	// DefaultCategory is the fallback category name.
	DefaultCategory = "entertainment"
)

// Priority bands of the built-in table, most specific first.
const (
	PrioritySelf          = 0
	PriorityOffline       = 10
	PriorityExcludeExact  = 20
	PriorityExcludeVendor = 30
	PriorityInclude       = 40
)

// Default returns the built-in rule table.
func Default() *Table {
	return &Table{
		Version:         "builtin-1",
		DefaultCategory: DefaultCategory,
		Rules: []Rule{
			{
				Name:     "self",
				Priority: PrioritySelf,
				Match:    MatchExact,
				Patterns: []string{SelfPackage},
			},
			{
				Name:     "virtual-offline",
				Priority: PriorityOffline,
				Match:    MatchToken,
				Patterns: []string{OfflinePrefix},
			},
			{
				Name:     "launchers",
				Priority: PriorityExcludeExact,
				Match:    MatchExact,
				Excluded: true,
				Patterns: []string{
					"com.android.launcher",
					"com.android.launcher3",
					"com.google.android.apps.nexuslauncher",
					"com.miui.home",
					"com.mi.android.globallauncher",
					"com.huawei.android.launcher",
					"com.oppo.launcher",
					"com.coloros.launcher",
					"com.bbk.launcher2",
					"com.sec.android.app.launcher",
					"com.oneplus.launcher",
				},
			},
			{
				Name:     "android-core",
				Priority: PriorityExcludeExact,
				Match:    MatchExact,
				Excluded: true,
				Patterns: []string{
					"android",
					"com.android.systemui",
					"com.android.settings",
					"com.android.phone",
					"com.android.server.telecom",
					"com.android.packageinstaller",
					"com.android.permissioncontroller",
					"com.google.android.permissioncontroller",
					"com.android.documentsui",
					"com.android.incallui",
					"com.google.android.gms",
					"com.google.android.inputmethod.latin",
				},
			},
			{
				Name:     "vendor-google",
				Priority: PriorityExcludeExact,
				Match:    MatchExact,
				Excluded: true,
				Patterns: []string{
					"com.google.android.gsf",
					"com.google.android.apps.wellbeing",
					"com.google.android.setupwizard",
				},
			},
			{
				Name:     "vendor-xiaomi",
				Priority: PriorityExcludeExact,
				Match:    MatchExact,
				Excluded: true,
				Patterns: []string{
					"com.miui.securitycenter",
					"com.miui.powerkeeper",
					"com.xiaomi.xmsf",
					"com.miui.notification",
				},
			},
			{
				Name:     "vendor-huawei",
				Priority: PriorityExcludeExact,
				Match:    MatchExact,
				Excluded: true,
				Patterns: []string{
					"com.huawei.systemmanager",
					"com.huawei.android.pushagent",
					"com.huawei.hwid",
				},
			},
			{
				Name:     "vendor-oppo",
				Priority: PriorityExcludeExact,
				Match:    MatchExact,
				Excluded: true,
				Patterns: []string{
					"com.coloros.safecenter",
					"com.oppo.safe",
					"com.coloros.oppoguardelf",
				},
			},
			{
				Name:     "vendor-vivo",
				Priority: PriorityExcludeExact,
				Match:    MatchExact,
				Excluded: true,
				Patterns: []string{
					"com.vivo.permissionmanager",
					"com.iqoo.secure",
					"com.vivo.abe",
				},
			},
			{
				Name:     "vendor-samsung",
				Priority: PriorityExcludeExact,
				Match:    MatchExact,
				Excluded: true,
				Patterns: []string{
					"com.samsung.android.lool",
					"com.samsung.android.sm.devicesecurity",
					"com.samsung.android.app.routines",
				},
			},
			{
				Name:     "vendor-prefixes",
				Priority: PriorityExcludeVendor,
				Match:    MatchPrefix,
				Excluded: true,
				Patterns: []string{
					"com.coloros.",
					"com.oplus.",
					"com.bbk.",
					"com.vivo.",
					"com.miui.system",
					"com.huawei.android.internal",
					"com.samsung.android.knox",
				},
			},
			{
				Name:     "system-keywords",
				Priority: PriorityExcludeVendor,
				Match:    MatchContains,
				Excluded: true,
				Patterns: []string{
					"launcher",
					"inputmethod",
					"systemui",
					"setupwizard",
					"packageinstaller",
					"permissioncontroller",
				},
			},
			{
				Name:     "entertainment",
				Priority: PriorityInclude,
				Match:    MatchExact,
				Category: "entertainment",
				Patterns: []string{
					"com.ss.android.ugc.aweme",
					"com.smile.gifmaker",
					"com.zhiliaoapp.musically",
					"tv.danmaku.bili",
					"com.google.android.youtube",
					"com.netflix.mediaclient",
					"com.tencent.tmgp.sgame",
					"com.tencent.mm",
					"com.sina.weibo",
				},
			},
			{
				Name:     "learning",
				Priority: PriorityInclude,
				Match:    MatchExact,
				Category: "learning",
				Patterns: []string{
					"com.duolingo",
					"com.youdao.dict",
					"org.khanacademy.android",
					"org.coursera.android",
					"com.google.android.apps.classroom",
					"com.amazon.kindle",
				},
			},
			{
				Name:     "work",
				Priority: PriorityInclude,
				Match:    MatchExact,
				Category: "learning",
				Patterns: []string{
					"com.alibaba.android.rimet",
					"com.tencent.wework",
					"com.microsoft.teams",
					"com.Slack",
					"us.zoom.videomeetings",
					"com.microsoft.office.word",
					"cn.wps.moffice_eng",
				},
			},
			{
				Name:     "fitness",
				Priority: PriorityInclude,
				Match:    MatchExact,
				Category: "fitness",
				Patterns: []string{
					"com.gotokeep.keep",
					"com.nike.plusgps",
					"com.strava",
					"com.xiaomi.hm.health",
					"com.huawei.health",
					"com.google.android.apps.fitness",
				},
			},
		},
	}
}
