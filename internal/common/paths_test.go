package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
		segs  []string
	}{
		{"root", "/", "/", []string{}},
		{"simple", "/foo", "/foo", []string{"foo"}},
		{"trailing_slash", "/foo/", "/foo", []string{"foo"}},
		{"two_parts", "/foo/bar", "/foo/bar", []string{"foo", "bar"}},
		{"three_parts_trailing", "/foo/bar/baz/", "/foo/bar/baz", []string{"foo", "bar", "baz"}},
		{"dotted_name", "/users/alice/notes.txt", "/users/alice/notes.txt", []string{"users", "alice", "notes.txt"}},
		{"spaces", "/my docs/a b.txt", "/my docs/a b.txt", []string{"my docs", "a b.txt"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Normalize(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
			assert.Equal(t, tt.segs, got.Segments())
		})
	}
}

func TestNormalizeInvalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"relative", "foo/bar"},
		{"double_root", "//"},
		{"double_slash", "/foo//bar"},
		{"many_slashes", "///foo"},
		{"double_trailing", "/foo//"},
		{"dot", "/foo/./bar"},
		{"dotdot", "/foo/../bar"},
		{"nul", "/foo\x00bar"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Normalize(tt.input)
			assert.ErrorIs(t, err, ErrInvalidPath, "Normalize(%q)", tt.input)
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	t.Parallel()

	for _, input := range []string{"/", "/a", "/a/", "/a/b/c", "/system/config.sys"} {
		first, err := Normalize(input)
		require.NoError(t, err)
		second, err := Normalize(first.String())
		require.NoError(t, err)
		assert.True(t, first.Equal(second), "Normalize not idempotent for %q", input)
		assert.Equal(t, first.String(), second.String())
	}
}

func TestPathNavigation(t *testing.T) {
	t.Parallel()

	p := MustNormalize("/users/alice/notes.txt")

	assert.Equal(t, "notes.txt", p.Base())
	assert.Equal(t, "/users/alice", p.Parent().String())
	assert.Equal(t, 3, p.Depth())
	assert.False(t, p.IsRoot())
	assert.True(t, Root.IsRoot())
	assert.Equal(t, "/", Root.Parent().String())
	assert.Equal(t, "", Root.Base())
	assert.Equal(t, "/users/alice/notes.txt/x", p.Child("x").String())
	assert.Equal(t, "/users/alice/notes.txt", p.String(), "Child must not mutate receiver")

	var anc []string
	for _, a := range p.Ancestors() {
		anc = append(anc, a.String())
	}
	assert.Equal(t, []string{"/users/alice/notes.txt", "/users/alice", "/users", "/"}, anc)

	assert.True(t, p.HasPrefix(MustNormalize("/users")))
	assert.True(t, p.HasPrefix(Root))
	assert.False(t, p.HasPrefix(MustNormalize("/use")))
	assert.False(t, MustNormalize("/users").HasPrefix(p))
}

func TestStringHelpers(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "/", ParentPath("/a"))
	assert.Equal(t, "/a", ParentPath("/a/b"))
	assert.Equal(t, "/", ParentPath("/"))
	assert.Equal(t, "b", BaseName("/a/b"))
	assert.Equal(t, "", BaseName("/"))
	assert.Equal(t, "/a", JoinPath("/", "a"))
	assert.Equal(t, "/a/b", JoinPath("/a", "b"))

	assert.True(t, ValidName("notes.txt"))
	assert.False(t, ValidName(""))
	assert.False(t, ValidName(".."))
	assert.False(t, ValidName("a/b"))
}
