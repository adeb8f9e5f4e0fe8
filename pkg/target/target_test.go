package target

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_Split(t *testing.T) {
	require.Equal(t, []string{"a", "b"}, Split(" a, ,b "))
	require.Empty(t, Split(""))
	require.Empty(t, Split(" , "))
}

func Test_Resolve(t *testing.T) {
	set, err := Resolve(
		[]string{"acme/widget", " docker.io/acme/gadget:1.0 ", "acme/widget", "nginx"},
		[]string{"acme", " other ", "acme", ""},
	)
	require.NoError(t, err)

	require.Equal(t, []Repository{
		{Namespace: "acme", Name: "widget"},
		{Namespace: "acme", Name: "gadget"},
		{Namespace: "library", Name: "nginx"},
	}, set.Repositories)
	require.Equal(t, []Organization{
		{Namespace: "acme"},
		{Namespace: "other"},
	}, set.Organizations)
	require.Equal(t, 5, set.Len())
}

func Test_Resolve_noTargets(t *testing.T) {
	_, err := Resolve(nil, nil)
	require.Error(t, err)

	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))

	_, err = Resolve(Split(" , "), Split(""))
	require.True(t, errors.As(err, &cfgErr))
}

func Test_Resolve_invalid(t *testing.T) {
	var cfgErr *ConfigurationError

	_, err := Resolve([]string{"ghcr.io/acme/widget"}, nil)
	require.True(t, errors.As(err, &cfgErr))
	require.Equal(t, "IMAGES", cfgErr.Field)

	_, err = Resolve(nil, []string{"acme/widget"})
	require.True(t, errors.As(err, &cfgErr))
	require.Equal(t, "ORGS", cfgErr.Field)
}

func Test_ParseRepository(t *testing.T) {
	repo, err := ParseRepository("acme/widget")
	require.NoError(t, err)
	require.Equal(t, "acme/widget", repo.String())

	repo, err = ParseRepository("index.docker.io/acme/widget@sha256:" +
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855")
	require.NoError(t, err)
	require.Equal(t, "acme/widget", repo.String())

	_, err = ParseRepository("acme/widget/extra")
	require.Error(t, err)

	_, err = ParseRepository("te*^#@@st")
	require.Error(t, err)
}

func Test_Resolve_caseInsensitive(t *testing.T) {
	set, err := Resolve(
		[]string{"Acme/Widget", "acme/widget", "docker.io/ACME/Gadget:V1"},
		[]string{"Acme", "acme"},
	)
	require.NoError(t, err)

	require.Equal(t, []Repository{
		{Namespace: "acme", Name: "widget"},
		{Namespace: "acme", Name: "gadget"},
	}, set.Repositories)
	require.Equal(t, []Organization{{Namespace: "acme"}}, set.Organizations)
}
