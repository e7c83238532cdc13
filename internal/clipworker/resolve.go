package clipworker

import (
	"fmt"
	"time"
)

// chainGrace is the fixed tolerance applied to every boundary
// comparison in resolveClipSources: a recording that starts or ends
// up to this much short of where it would need to, to butt cleanly
// against the clip window or the next recording, is still treated as
// contiguous. Segmenter rollover and object-store listing both have
// sub-second jitter; a hard boundary would reject otherwise-good
// plans on that jitter alone.
const chainGrace = 1 * time.Second

// covers reports whether object o's interval, widened by chainGrace on
// both ends, contains instant t.
func covers(o VideoObject, t time.Time) bool {
	return !o.Start.Add(-chainGrace).After(t) && !o.End.Add(chainGrace).Before(t)
}

// coversWindow reports whether o alone covers [clipStart, clipEnd]
// within chainGrace.
func coversWindow(o VideoObject, clipStart, clipEnd time.Time) bool {
	return !o.Start.Add(-chainGrace).After(clipStart) && !o.End.Add(chainGrace).Before(clipEnd)
}

// resolveClipSources selects the minimal ordered chain of objects (all
// from the same camera, already filtered by the caller) whose
// concatenated coverage spans [clipStart, clipEnd]. It generalizes the
// two-recording stitch case to an arbitrary chain length: any number
// of consecutive recordings may be concatenated as long as each pair
// butts together within chainGrace. When several objects each cover
// the whole window alone, the one latestCovering would prefer is
// returned as a single-member plan. Resolution fails when no object
// covers clipStart, when the next object after the chain starts more
// than chainGrace past its end (the error reports the gap size), or
// when no object covers the rest of the window.
func resolveClipSources(objects []VideoObject, clipStart, clipEnd time.Time) (ClipPlan, error) {
	var single VideoObject
	haveSingle := false
	for _, o := range objects {
		if coversWindow(o, clipStart, clipEnd) && (!haveSingle || betterInitialCandidate(o, single)) {
			single = o
			haveSingle = true
		}
	}
	if haveSingle {
		return ClipPlan{Members: []VideoObject{single}}, nil
	}

	first, ok := latestCovering(objects, clipStart)
	if !ok {
		return ClipPlan{}, fmt.Errorf("clipworker: no video object covers clip start %s", clipStart.Format(time.RFC3339))
	}

	chain := []VideoObject{first}
	chainEnd := first.End

	for chainEnd.Add(chainGrace).Before(clipEnd) {
		next, ok := bestExtension(objects, chain, chainEnd)
		if !ok {
			var nextStart time.Time
			for _, o := range objects {
				if o.Start.After(chainEnd) && (nextStart.IsZero() || o.Start.Before(nextStart)) {
					nextStart = o.Start
				}
			}
			if !nextStart.IsZero() && nextStart.Before(clipEnd) {
				return ClipPlan{}, fmt.Errorf(
					"clipworker: gap of %s between video objects after %s, needed through %s",
					nextStart.Sub(chainEnd), chainEnd.Format(time.RFC3339), clipEnd.Format(time.RFC3339))
			}
			return ClipPlan{}, fmt.Errorf(
				"clipworker: no video object covers %s through %s",
				chainEnd.Format(time.RFC3339), clipEnd.Format(time.RFC3339))
		}
		chain = append(chain, next)
		chainEnd = next.End
	}

	return ClipPlan{Members: chain}, nil
}

// latestCovering returns the object covering t with the latest start
// time, breaking ties by earliest end then lexicographically smallest
// name. Preferring the latest-starting covering object mirrors
// choosing the most recently written recording when several
// overlapping ones exist, which is the common case right after a
// segment rollover.
func latestCovering(objects []VideoObject, t time.Time) (VideoObject, bool) {
	var best VideoObject
	found := false
	for _, o := range objects {
		if !covers(o, t) {
			continue
		}
		if !found || betterInitialCandidate(o, best) {
			best = o
			found = true
		}
	}
	return best, found
}

func betterInitialCandidate(candidate, current VideoObject) bool {
	if !candidate.Start.Equal(current.Start) {
		return candidate.Start.After(current.Start)
	}
	if !candidate.End.Equal(current.End) {
		return candidate.End.Before(current.End)
	}
	return candidate.Name < current.Name
}

// bestExtension finds the object that most extends coverage past
// chainEnd: among objects that start no later than chainGrace past
// chainEnd and end after it, the one with the latest end, breaking ties by earliest
// start then lexicographically smallest name. Already-chained members
// are excluded so a recording can't be reused to fake progress.
func bestExtension(objects []VideoObject, chain []VideoObject, chainEnd time.Time) (VideoObject, bool) {
	used := make(map[string]bool, len(chain))
	for _, c := range chain {
		used[c.Name] = true
	}

	var best VideoObject
	found := false
	for _, o := range objects {
		if used[o.Name] {
			continue
		}
		if o.Start.After(chainEnd.Add(chainGrace)) {
			continue
		}
		if !o.End.After(chainEnd) {
			continue
		}
		if !found || betterExtensionCandidate(o, best) {
			best = o
			found = true
		}
	}
	return best, found
}

func betterExtensionCandidate(candidate, current VideoObject) bool {
	if !candidate.End.Equal(current.End) {
		return candidate.End.After(current.End)
	}
	if !candidate.Start.Equal(current.Start) {
		return candidate.Start.Before(current.Start)
	}
	return candidate.Name < current.Name
}
