package residency

import "github.com/0xmhha/usage-ledger/pkg/rules"

// Built-in limits per level.
var (
	DefaultHighLimits   = Limits{MinValidSec: 10, MaxContinuousSec: 1800}
	DefaultMediumLimits = Limits{MinValidSec: 5, MaxContinuousSec: 3600}
	DefaultLowLimits    = Limits{MinValidSec: 2, MaxContinuousSec: 10800}
)

// DefaultConfig returns the built-in package sets.
func DefaultConfig() Config {
	return Config{
		High: []string{
			"com.tencent.mm",
			"com.tencent.mobileqq",
			"com.eg.android.AlipayGphone",
			"com.alibaba.android.rimet",
			"com.tencent.wework",
			"com.ss.android.lark",
			"com.xunmeng.pinduoduo",
			"com.taobao.taobao",
		},
		Medium: []string{
			"com.whatsapp",
			"org.telegram.messenger",
			"com.facebook.orca",
			"jp.naver.line.android",
			"com.autonavi.minimap",
			"com.baidu.BaiduMap",
			"com.google.android.apps.maps",
			"cmb.pb",
			"com.icbc",
			"com.chinamworld.main",
			"com.baidu.netdisk",
			"com.google.android.apps.docs",
			"com.microsoft.skydrive",
			"com.dropbox.android",
		},
		SelfPackage:     rules.SelfPackage,
		SelfMinValidSec: 1,
	}
}
