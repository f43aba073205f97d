package hstore

import (
	"errors"
	"reflect"
	"testing"
)

// recipe is a minimal Storable used across the protocol tests.
type recipe struct {
	Title string
	Steps []string
}

func (r *recipe) StoreName() string    { return "recipe" }
func (r *recipe) TypeTag() string      { return "hstoretest.recipe" }
func (r *recipe) StoreVersion() string { return "1.0.0" }

func (r *recipe) WriteStore(g *Group) error {
	if err := g.Put("title", r.Title); err != nil {
		return err
	}
	return g.Put("steps", r.Steps)
}

func (r *recipe) ReadStore(g *Group, version string) error {
	if version != "1.0.0" && version != OldestStoreVersion {
		return NewVersionError(g.Path(), version, "1.0.0")
	}
	v, err := g.Get("title")
	if err != nil {
		return err
	}
	r.Title = v.(string)
	v, err = g.GetDefault("steps", []string(nil))
	if err != nil {
		return err
	}
	r.Steps, _ = v.([]string)
	return nil
}

func init() {
	RegisterLoader("hstoretest.recipe", func(g *Group) (any, error) {
		r := new(recipe)
		if err := LoadInto(r, g); err != nil {
			return nil, err
		}
		return r, nil
	})
}

func TestSaveLoadObject(t *testing.T) {
	store := OpenMemory(nil)
	defer store.Close()
	root := store.Root()

	saved := &recipe{Title: "stew", Steps: []string{"chop", "simmer"}}
	if err := SaveObject(saved, root, ""); err != nil {
		t.Fatalf("SaveObject failed: %v", err)
	}

	g := root.Group("recipe")
	if g == nil {
		t.Fatalf("default group name not used")
	}
	hdr, ok, err := ReadHeader(g)
	if err != nil || !ok {
		t.Fatalf("ReadHeader = %v, %v", ok, err)
	}
	if hdr.Type != "hstoretest.recipe" || hdr.Name != "recipe" || hdr.Object != "recipe" || hdr.StoreVersion != "1.0.0" {
		t.Fatalf("header = %+v", hdr)
	}

	var loaded recipe
	if err := LoadObject(&loaded, root, ""); err != nil {
		t.Fatalf("LoadObject failed: %v", err)
	}
	if !reflect.DeepEqual(&loaded, saved) {
		t.Fatalf("loaded %+v, want %+v", loaded, *saved)
	}
}

func TestLoadObjectMissingGroup(t *testing.T) {
	store := OpenMemory(nil)
	defer store.Close()
	var r recipe
	if err := LoadObject(&r, store.Root(), "nope"); !errors.Is(err, ErrGroupNotFound) {
		t.Fatalf("LoadObject(missing) err = %v, want ErrGroupNotFound", err)
	}
}

func TestSaveObjectRefusesUnrelatedOverwrite(t *testing.T) {
	store := OpenMemory(nil)
	defer store.Close()
	root := store.Root()

	g := must(root.CreateGroup("recipe"))
	if err := g.Put("unrelated", int64(1)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	err := SaveObject(&recipe{Title: "x"}, root, "")
	if err == nil {
		t.Fatalf("SaveObject over unrelated data succeeded")
	}

	// An explicit name means the caller takes responsibility.
	if err := SaveObject(&recipe{Title: "x"}, root, "recipe"); err != nil {
		t.Fatalf("SaveObject with explicit name failed: %v", err)
	}

	// Re-saving over our own previous write is always fine.
	if err := SaveObject(&recipe{Title: "y"}, root, ""); err != nil {
		t.Fatalf("re-save failed: %v", err)
	}
}

func TestLoadObjectDefaultsVersion(t *testing.T) {
	store := OpenMemory(nil)
	defer store.Close()
	root := store.Root()

	// Simulate pre-versioning data: a type header without STORE_VERSION.
	g := must(root.CreateGroup("recipe"))
	if err := g.Put("TYPE", "hstoretest.recipe"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := g.Put("title", "old"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	var r recipe
	if err := LoadObject(&r, root, ""); err != nil {
		t.Fatalf("LoadObject failed: %v", err)
	}
	if r.Title != "old" {
		t.Fatalf("Title = %q", r.Title)
	}
}

func TestRewriteCompacts(t *testing.T) {
	store := OpenMemory(nil)
	defer store.Close()
	root := store.Root()

	if err := SaveObject(&recipe{Title: "stew"}, root, ""); err != nil {
		t.Fatalf("SaveObject failed: %v", err)
	}
	g := root.Group("recipe")
	if err := g.Put("stale", int64(9)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	var r recipe
	if err := Rewrite(&r, root, ""); err != nil {
		t.Fatalf("Rewrite failed: %v", err)
	}
	g = root.Group("recipe")
	if g.Has("stale") {
		t.Fatalf("stale key survived Rewrite")
	}
	if v, err := g.Get("title"); err != nil || v != "stew" {
		t.Fatalf("title after Rewrite = %v, %v", v, err)
	}
}

func TestLoadAny(t *testing.T) {
	store := OpenMemory(nil)
	defer store.Close()
	root := store.Root()

	if err := SaveObject(&recipe{Title: "stew"}, root, ""); err != nil {
		t.Fatalf("SaveObject failed: %v", err)
	}
	v, err := LoadAny(root.Group("recipe"))
	if err != nil {
		t.Fatalf("LoadAny failed: %v", err)
	}
	if r, ok := v.(*recipe); !ok || r.Title != "stew" {
		t.Fatalf("LoadAny = %T %v", v, v)
	}

	// An unregistered group falls back to a generic map, headers excluded.
	g := must(root.CreateGroup("plain"))
	if err := g.Put("a", int64(1)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := must(g.CreateGroup("sub")).Put("b", "two"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	v, err = LoadAny(g)
	if err != nil {
		t.Fatalf("LoadAny failed: %v", err)
	}
	want := map[string]any{"a": int64(1), "sub": map[string]any{"b": "two"}}
	if !reflect.DeepEqual(v, want) {
		t.Fatalf("LoadAny = %#v, want %#v", v, want)
	}
}

func TestPruneStale(t *testing.T) {
	store := OpenMemory(nil)
	defer store.Close()
	g := must(store.Root().CreateGroup("g"))

	ensure(g.Put("TYPE", "x"))
	ensure(g.Put("keep", int64(1)))
	ensure(g.Put("drop", int64(2)))
	must(g.CreateGroup("keepgroup"))
	must(g.CreateGroup("dropgroup"))

	if err := PruneStale(g, map[string]bool{"keep": true, "keepgroup": true}); err != nil {
		t.Fatalf("PruneStale failed: %v", err)
	}
	if !g.Has("keep") || g.Has("drop") {
		t.Fatalf("node pruning wrong: keep=%v drop=%v", g.Has("keep"), g.Has("drop"))
	}
	if g.Group("keepgroup") == nil || g.Group("dropgroup") != nil {
		t.Fatalf("group pruning wrong")
	}
	if !g.Has("TYPE") {
		t.Fatalf("header key must survive pruning")
	}
}

func TestStub(t *testing.T) {
	store := OpenMemory(nil)
	defer store.Close()
	root := store.Root()

	if err := SaveObject(&recipe{Title: "stew"}, root, ""); err != nil {
		t.Fatalf("SaveObject failed: %v", err)
	}
	g := root.Group("recipe")

	st := NewStub(g, "")
	if got := st.String(); got != "<stub /recipe>" {
		t.Fatalf("String = %q", got)
	}
	v, err := st.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if r, ok := v.(*recipe); !ok || r.Title != "stew" {
		t.Fatalf("Load = %T %v", v, v)
	}

	kst := NewStub(g, "title")
	if got := kst.String(); got != "<stub /recipe/title>" {
		t.Fatalf("String = %q", got)
	}
	v, err = kst.Load()
	if err != nil || v != "stew" {
		t.Fatalf("Load(key) = %v, %v", v, err)
	}
}

func TestRegisterLoaderValidation(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("duplicate registration must panic")
		}
	}()
	RegisterLoader("hstoretest.recipe", func(g *Group) (any, error) { return nil, nil })
}
