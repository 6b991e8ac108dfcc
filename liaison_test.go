package liaison

import (
	"errors"
	"testing"

	"github.com/cnx2016/liaison/expo"
)

func TestRegister(t *testing.T) {
	l := New("api", nil)
	a, b := NewClass(), NewClass()
	err := l.Register(map[string]*Item{"A": a, "B": b})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if got := l.Names(); len(got) != 2 || got[0] != "A" || got[1] != "B" {
		t.Errorf("want names [A B] got %v", got)
	}
	err = l.RegisterOne("C", a)
	if !errors.Is(err, ErrRegistered) {
		t.Errorf("want ErrRegistered got %v", err)
	}
	err = l.RegisterOne("A", NewClass())
	if !errors.Is(err, ErrDupName) {
		t.Errorf("want ErrDupName got %v", err)
	}
	if _, err = l.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("want ErrNotFound got %v", err)
	}
	if it, err := l.Get("A"); err != nil || it != a {
		t.Errorf("want item A got %v %v", it, err)
	}
	if a.RegName() != "A" || a.Layer() != l {
		t.Errorf("item not bound to layer")
	}
}

func TestRegisterAllOrNothing(t *testing.T) {
	l := New("api", nil)
	err := l.RegisterOne("A", NewClass())
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	err = l.Register(map[string]*Item{"B": NewClass(), "A": NewClass()})
	if !errors.Is(err, ErrDupName) {
		t.Fatalf("want ErrDupName got %v", err)
	}
	if l.Has("B") {
		t.Errorf("failed register must not install B")
	}
}

func TestGeneratedName(t *testing.T) {
	l := New("", nil)
	if l.Name() == "" || !l.Generated() {
		t.Errorf("want generated name got %q", l.Name())
	}
	if n := New("api", nil); n.Generated() {
		t.Errorf("explicit name must not be marked generated")
	}
}

func TestOpenClose(t *testing.T) {
	l := New("api", nil)
	var opened, closed int
	it := NewClass()
	it.Opener = func() error { opened++; return nil }
	it.Closer = func() error { closed++; return nil }
	if err := l.RegisterOne("A", it); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := l.Open(); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if err := l.Open(); !errors.Is(err, ErrAlreadyOpen) {
		t.Errorf("want ErrAlreadyOpen got %v", err)
	}
	if err := l.Register(map[string]*Item{"B": NewClass()}); !errors.Is(err, ErrOpenLayer) {
		t.Errorf("want ErrOpenLayer got %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := l.Close(); !errors.Is(err, ErrNotOpen) {
		t.Errorf("want ErrNotOpen got %v", err)
	}
	if opened != 1 || closed != 1 {
		t.Errorf("want one open and close got %d %d", opened, closed)
	}
}

func TestOpenRollback(t *testing.T) {
	l := New("api", nil)
	var closed []string
	ok := NewClass()
	ok.Closer = func() error { closed = append(closed, "A"); return nil }
	bad := NewClass()
	bad.Opener = func() error { return errors.New("boom") }
	err := l.Register(map[string]*Item{"A": ok, "B": bad})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	err = l.Open()
	if err == nil {
		t.Fatalf("want open error")
	}
	if l.IsOpen() {
		t.Errorf("failed open must not mark the layer open")
	}
	if len(closed) != 1 || closed[0] != "A" {
		t.Errorf("want rollback close of A got %v", closed)
	}
}

func TestCloseOnFork(t *testing.T) {
	l := New("api", nil)
	if err := l.RegisterOne("A", NewClass()); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := l.Open(); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	f := l.Fork()
	if f.IsOpen() {
		t.Errorf("fork must not inherit the open state")
	}
	if err := f.Close(); !errors.Is(err, ErrNotOpen) {
		t.Errorf("want ErrNotOpen on fork close got %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
}

func TestForkCopyOnWrite(t *testing.T) {
	l := New("api", nil)
	it := NewClass()
	it.Define("text", "orig")
	if err := l.RegisterOne("A", it); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	f := l.Fork()
	if got := f.Names(); len(got) != 1 || got[0] != "A" {
		t.Fatalf("fork must see inherited names, got %v", got)
	}
	fa := f.Lookup("A")
	if fa == it {
		t.Fatalf("fork lookup must materialize an own copy")
	}
	if fa2 := f.Lookup("A"); fa2 != fa {
		t.Errorf("materialized copy must be cached")
	}
	fa.Define("text", "forked")
	if v, _ := it.Field("text"); v != "orig" {
		t.Errorf("fork write leaked to origin: %v", v)
	}
	if v, _ := fa.Field("text"); v != "forked" {
		t.Errorf("fork write lost: %v", v)
	}
	g := l.Fork()
	if v, _ := g.Lookup("A").Field("text"); v != "orig" {
		t.Errorf("sibling fork sees foreign write: %v", v)
	}
}

func TestForkShadowing(t *testing.T) {
	l := New("api", nil)
	if err := l.RegisterOne("A", NewClass()); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	f := l.Fork()
	own := NewClass()
	if err := f.RegisterOne("B", own); err != nil {
		t.Fatalf("fork register failed: %v", err)
	}
	if l.Has("B") {
		t.Errorf("fork registration leaked to origin")
	}
	if err := f.RegisterOne("A", NewClass()); !errors.Is(err, ErrDupName) {
		t.Errorf("want ErrDupName for inherited name got %v", err)
	}
}

func TestGhost(t *testing.T) {
	l := New("api", nil)
	it := NewClass()
	it.Define("n", 1)
	if err := l.RegisterOne("A", it); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	g := l.Ghost()
	if g2 := l.Ghost(); g2 != g {
		t.Errorf("ghost must be memoized")
	}
	g.Lookup("A").Define("n", 2)
	if v, _ := l.Lookup("A").Field("n"); v != 1 {
		t.Errorf("ghost write leaked to canonical registry: %v", v)
	}
}

func TestDetach(t *testing.T) {
	l := New("api", nil)
	if err := l.RegisterOne("A", NewClass()); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	f := l.Fork()
	f.Detach()
	if !f.Detached() {
		t.Fatalf("fork must be detached")
	}
	if f.Lookup("A") == nil || !f.Lookup("A").Detached() {
		t.Errorf("materialized item must inherit the detached mark")
	}
	if l.Detached() || l.Lookup("A").Detached() {
		t.Errorf("detach leaked to origin")
	}
}

func TestExposesMethod(t *testing.T) {
	l := New("api", nil)
	it := NewClass()
	it.Bind("go", func(recv *Item, args []interface{}) (interface{}, error) { return nil, nil })
	it.Define("x", 1)
	if err := it.Expose("go", expo.KindMethod, expo.Perm{Call: true}); err != nil {
		t.Fatalf("expose failed: %v", err)
	}
	if err := it.Expose("x", expo.KindField, expo.Perm{Get: true}); err != nil {
		t.Fatalf("expose failed: %v", err)
	}
	if err := l.RegisterOne("A", it); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	tests := []struct {
		item, prop string
		want       bool
	}{
		{"A", "go", true},
		{"A", "x", false},
		{"A", "other", false},
		{"B", "go", false},
	}
	for _, test := range tests {
		if got := l.ExposesMethod(test.item, test.prop); got != test.want {
			t.Errorf("exposes %s.%s: want %v got %v", test.item, test.prop, test.want, got)
		}
	}
}

func TestIntrospect(t *testing.T) {
	l := New("api", nil)
	it := NewClass()
	it.Define("x", 1)
	it.Define("hidden", 2)
	if err := it.Expose("x", expo.KindField, expo.Perm{Get: true}); err != nil {
		t.Fatalf("expose failed: %v", err)
	}
	if err := l.RegisterOne("A", it); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	res := l.Introspect(&IntroOpts{ExposedOnly: true})
	if res["name"] != "api" {
		t.Errorf("want layer name got %v", res["name"])
	}
	items, _ := res["items"].(map[string]interface{})
	a, _ := items["A"].(map[string]interface{})
	if a == nil {
		t.Fatalf("want item A in introspection got %v", res)
	}
	if a["_type"] != "class" {
		t.Errorf("want class marker got %v", a["_type"])
	}
	if _, ok := a["x"]; !ok {
		t.Errorf("want exposed prop x in %v", a)
	}
	if _, ok := a["hidden"]; ok {
		t.Errorf("unexposed prop leaked into %v", a)
	}
	inst := it.NewInstance()
	ri := inst.Introspect(nil)
	if ri["_type"] != "instance" {
		t.Errorf("want instance marker got %v", ri["_type"])
	}
	if _, ok := ri["class"].(map[string]interface{}); !ok {
		t.Errorf("want nested class introspection got %v", ri)
	}
}
