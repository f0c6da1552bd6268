package project

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validProject(name string) Project {
	return Project{
		Name:         name,
		Src:          "/src/" + name,
		BuildCommand: "npm run build",
		BuildOutput:  "/src/" + name + "/dist",
		Destinations: []string{"/appA/node_modules/" + name},
	}
}

// ---------------------------------------------------------------------------
// Validate
// ---------------------------------------------------------------------------

func TestProjectValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Project)
		wantErr string
	}{
		{"valid", func(*Project) {}, ""},
		{"no destinations is valid", func(p *Project) { p.Destinations = nil }, ""},
		{"missing name", func(p *Project) { p.Name = "" }, "name"},
		{"missing src", func(p *Project) { p.Src = " " }, "src"},
		{"missing build command", func(p *Project) { p.BuildCommand = "" }, "build_command"},
		{"missing build output", func(p *Project) { p.BuildOutput = "" }, "build_output"},
		{"empty destination", func(p *Project) { p.Destinations = []string{"/a", ""} }, "destinations[1]"},
		{"bad constraint", func(p *Project) { p.Requires = map[string]string{"node": ">>18"} }, "requires[node]"},
		{"good constraint", func(p *Project) { p.Requires = map[string]string{"node": ">=18.0.0"} }, ""},
		{"bad ignore", func(p *Project) { p.Ignore = []string{"[a-"} }, "invalid ignore pattern"},
		{"slash separated ignore", func(p *Project) { p.Ignore = []string{"src/*.snap"} }, ""},
		{"ignore with trailing escape", func(p *Project) { p.Ignore = []string{`lib\`} }, "invalid ignore pattern"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validProject("lib")
			tt.mutate(&p)

			err := p.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}

func TestProjectsValidate_Duplicate(t *testing.T) {
	ps := Projects{validProject("a"), validProject("b"), validProject("a")}

	err := ps.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.Contains(t, err.Error(), "libraries[0] and libraries[2]")
}

func TestSyncEligible(t *testing.T) {
	p := validProject("lib")
	assert.True(t, p.SyncEligible())

	p.Destinations = nil
	assert.False(t, p.SyncEligible())
}

func TestOutputInsideSource(t *testing.T) {
	tests := []struct {
		src, out string
		want     bool
	}{
		{"/src", "/src/dist", true},
		{"/src", "/src/build/out", true},
		{"/src", "/src", false},
		{"/src", "/other/dist", false},
		{"/src", "/src-dist", false},
		{"/src/lib", "/src", false},
	}

	for _, tt := range tests {
		t.Run(tt.out, func(t *testing.T) {
			p := Project{Src: filepath.FromSlash(tt.src), BuildOutput: filepath.FromSlash(tt.out)}
			assert.Equal(t, tt.want, p.OutputInsideSource())
		})
	}
}

// ---------------------------------------------------------------------------
// Clone / Resolve
// ---------------------------------------------------------------------------

func TestClone_IsDeep(t *testing.T) {
	p := validProject("lib")
	p.Requires = map[string]string{"node": ">=18"}
	p.Ignore = []string{"*.log"}

	c := p.Clone()
	c.Destinations[0] = "/changed"
	c.Requires["node"] = ">=20"
	c.Ignore[0] = "*.tmp"

	assert.Equal(t, "/appA/node_modules/lib", p.Destinations[0])
	assert.Equal(t, ">=18", p.Requires["node"])
	assert.Equal(t, "*.log", p.Ignore[0])
}

func TestResolve(t *testing.T) {
	base := filepath.FromSlash("/work/config")
	p := Project{
		Name:         "lib",
		Src:          "../lib",
		BuildCommand: "true",
		BuildOutput:  filepath.FromSlash("/abs/dist"),
		Destinations: []string{"../app/node_modules/lib"},
	}

	r := p.Resolve(base)
	assert.Equal(t, filepath.FromSlash("/work/lib"), r.Src)
	assert.Equal(t, filepath.FromSlash("/abs/dist"), r.BuildOutput)
	assert.Equal(t, filepath.FromSlash("/work/app/node_modules/lib"), r.Destinations[0])
	assert.Equal(t, "../app/node_modules/lib", p.Destinations[0], "original must not change")
}

// ---------------------------------------------------------------------------
// Find / Select / Upsert / Remove
// ---------------------------------------------------------------------------

func TestFind(t *testing.T) {
	ps := Projects{validProject("a"), validProject("b")}

	p, err := ps.Find("b")
	require.NoError(t, err)
	assert.Equal(t, "b", p.Name)

	_, err = ps.Find("c")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSelect(t *testing.T) {
	ps := Projects{validProject("a"), validProject("b"), validProject("c")}

	all, err := ps.Select()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, all.Names())

	some, err := ps.Select("c", "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a"}, some.Names())

	_, err = ps.Select("a", "zzz")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpsert(t *testing.T) {
	ps := Projects{validProject("a")}

	updated := validProject("a")
	updated.BuildCommand = "make"

	ps2 := ps.Upsert(updated)
	require.Len(t, ps2, 1)
	assert.Equal(t, "make", ps2[0].BuildCommand)
	assert.Equal(t, "npm run build", ps[0].BuildCommand, "receiver must not change")

	ps3 := ps2.Upsert(validProject("b"))
	assert.Equal(t, []string{"a", "b"}, ps3.Names())
}

func TestRemove(t *testing.T) {
	ps := Projects{validProject("a"), validProject("b"), validProject("c")}

	out, err := ps.Remove("b")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, out.Names())
	assert.Equal(t, []string{"a", "b", "c"}, ps.Names())

	_, err = ps.Remove("zzz")
	assert.ErrorIs(t, err, ErrNotFound)
}
