package nuclide

import "testing"

func TestName(t *testing.T) {
	cases := []struct {
		z, a, m int
		want    string
	}{
		{92, 235, 0, "U235"},
		{95, 242, 1, "Am242_m1"},
		{1, 1, 0, "H1"},
		{118, 294, 0, "Og294"},
		{61, 148, 2, "Pm148_m2"},
		{0, 1, 0, ""},   // 中子不是核素名
		{200, 1, 0, ""}, // 超出元素表
		{92, 0, 0, ""},
		{92, 400, 0, ""},
	}
	for _, c := range cases {
		if got := Name(c.z, c.a, c.m); got != c.want {
			t.Errorf("Name(%d,%d,%d)=%q，期望 %q", c.z, c.a, c.m, got, c.want)
		}
	}
}

func TestZForSymbol(t *testing.T) {
	if z, ok := ZForSymbol("u"); !ok || z != 92 {
		t.Fatalf("ZForSymbol(u)=(%d,%v)，期望 (92,true)", z, ok)
	}
	if z, ok := ZForSymbol("Am"); !ok || z != 95 {
		t.Fatalf("ZForSymbol(Am)=(%d,%v)，期望 (95,true)", z, ok)
	}
	if _, ok := ZForSymbol("Xx"); ok {
		t.Fatal("Xx 不应命中元素表")
	}
}

func TestFromZAID(t *testing.T) {
	cases := []struct {
		za         int
		z, a, m    int
		ok         bool
	}{
		{92235, 92, 235, 0, true},
		{95642, 95, 242, 1, true}, // Am-242m：A+400 约定
		{1001, 1, 1, 0, true},
		{4009, 4, 9, 0, true},
		{0, 0, 0, 0, false},
		{92000, 0, 0, 0, false},  // 天然元素无质量数
		{999235, 0, 0, 0, false}, // Z 超表
	}
	for _, c := range cases {
		z, a, m, ok := FromZAID(c.za)
		if ok != c.ok || z != c.z || a != c.a || m != c.m {
			t.Errorf("FromZAID(%d)=(%d,%d,%d,%v)，期望 (%d,%d,%d,%v)",
				c.za, z, a, m, ok, c.z, c.a, c.m, c.ok)
		}
	}
}

func TestZAID_RoundTrip(t *testing.T) {
	for _, za := range []int{92235, 95642, 1001, 61548} {
		z, a, m, ok := FromZAID(za)
		if !ok {
			t.Fatalf("FromZAID(%d) 解析失败", za)
		}
		if back := ZAID(z, a, m); back != za {
			t.Errorf("ZAID 往返不一致：%d -> %d", za, back)
		}
	}
}
