package clipworker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func at(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func obj(name string, start, end string) VideoObject {
	return VideoObject{Name: name, CameraID: "cam0", Start: at(start), End: at(end)}
}

func TestResolveClipSourcesSingleCoveringObject(t *testing.T) {
	objects := []VideoObject{
		obj("a", "2026-01-01T00:00:00Z", "2026-01-01T00:10:00Z"),
	}
	plan, err := resolveClipSources(objects, at("2026-01-01T00:02:00Z"), at("2026-01-01T00:03:00Z"))
	require.NoError(t, err)
	require.True(t, plan.IsSingle())
	require.Equal(t, "a", plan.Members[0].Name)
}

func TestResolveClipSourcesTwoWayStitch(t *testing.T) {
	objects := []VideoObject{
		obj("a", "2026-01-01T00:00:00Z", "2026-01-01T00:05:00Z"),
		obj("b", "2026-01-01T00:05:00Z", "2026-01-01T00:10:00Z"),
	}
	plan, err := resolveClipSources(objects, at("2026-01-01T00:04:30Z"), at("2026-01-01T00:05:30Z"))
	require.NoError(t, err)
	require.Len(t, plan.Members, 2)
	require.Equal(t, "a", plan.Members[0].Name)
	require.Equal(t, "b", plan.Members[1].Name)
}

func TestResolveClipSourcesThreeWayChain(t *testing.T) {
	objects := []VideoObject{
		obj("a", "2026-01-01T00:00:00Z", "2026-01-01T00:05:00Z"),
		obj("b", "2026-01-01T00:05:00Z", "2026-01-01T00:10:00Z"),
		obj("c", "2026-01-01T00:10:00Z", "2026-01-01T00:15:00Z"),
	}
	plan, err := resolveClipSources(objects, at("2026-01-01T00:04:00Z"), at("2026-01-01T00:11:00Z"))
	require.NoError(t, err)
	require.Len(t, plan.Members, 3)
	require.Equal(t, []string{"a", "b", "c"}, []string{plan.Members[0].Name, plan.Members[1].Name, plan.Members[2].Name})
}

func TestResolveClipSourcesGraceToleratesSubSecondGap(t *testing.T) {
	objects := []VideoObject{
		obj("a", "2026-01-01T00:00:00Z", "2026-01-01T00:05:00Z"),
		// 400ms gap after a, within the 1s grace.
		{Name: "b", CameraID: "cam0", Start: at("2026-01-01T00:05:00Z").Add(400 * time.Millisecond), End: at("2026-01-01T00:10:00Z")},
	}
	plan, err := resolveClipSources(objects, at("2026-01-01T00:04:00Z"), at("2026-01-01T00:06:00Z"))
	require.NoError(t, err)
	require.Len(t, plan.Members, 2)
}

func TestResolveClipSourcesGapBeyondGraceFails(t *testing.T) {
	objects := []VideoObject{
		obj("a", "2026-01-01T00:00:00Z", "2026-01-01T00:05:00Z"),
		obj("b", "2026-01-01T00:05:05Z", "2026-01-01T00:10:00Z"),
	}
	_, err := resolveClipSources(objects, at("2026-01-01T00:04:00Z"), at("2026-01-01T00:06:00Z"))
	require.Error(t, err)
}

func TestResolveClipSourcesNoCoverageOfStart(t *testing.T) {
	objects := []VideoObject{
		obj("a", "2026-01-01T01:00:00Z", "2026-01-01T01:05:00Z"),
	}
	_, err := resolveClipSources(objects, at("2026-01-01T00:04:00Z"), at("2026-01-01T00:06:00Z"))
	require.Error(t, err)
}

func TestResolveClipSourcesPicksLatestStartingCoveringObject(t *testing.T) {
	objects := []VideoObject{
		// Both cover clipStart, overlapping; the later-starting one
		// should be preferred as the chain's first member.
		obj("older", "2026-01-01T00:00:00Z", "2026-01-01T00:06:00Z"),
		obj("newer", "2026-01-01T00:03:00Z", "2026-01-01T00:09:00Z"),
	}
	plan, err := resolveClipSources(objects, at("2026-01-01T00:04:00Z"), at("2026-01-01T00:05:00Z"))
	require.NoError(t, err)
	require.True(t, plan.IsSingle())
	require.Equal(t, "newer", plan.Members[0].Name)
}
