package eventstore

import "github.com/benjaminabbitt/angzarr-core/pb"

// compositeRead implements the algorithm in spec §4.1: given all
// edition-local pages (any sequence) and all main-timeline pages with
// sequence < divergence, merge them into one ordered read starting at
// `from`. Divergence is derived, not stored: the minimum sequence among the
// edition-local pages. Grounded on
// original_source/src/storage/sqlite/event_store.rs's composite_read.
func CompositeRead(editionPages, mainPages []pb.EventPage, from uint64) []pb.EventPage {
	if len(editionPages) == 0 {
		return FilterFrom(mainPages, from)
	}

	divergence := editionPages[0].Sequence
	for _, p := range editionPages[1:] {
		if p.Sequence < divergence {
			divergence = p.Sequence
		}
	}

	out := make([]pb.EventPage, 0, len(mainPages)+len(editionPages))
	for _, p := range mainPages {
		if p.Sequence < divergence && p.Sequence >= from {
			out = append(out, p)
		}
	}
	for _, p := range editionPages {
		if p.Sequence >= from {
			out = append(out, p)
		}
	}
	return out
}

func FilterFrom(pages []pb.EventPage, from uint64) []pb.EventPage {
	out := make([]pb.EventPage, 0, len(pages))
	for _, p := range pages {
		if p.Sequence >= from {
			out = append(out, p)
		}
	}
	return out
}

// divergenceOf returns the minimum sequence among edition-local pages, and
// whether any exist.
func divergenceOf(editionPages []pb.EventPage) (uint64, bool) {
	if len(editionPages) == 0 {
		return 0, false
	}
	d := editionPages[0].Sequence
	for _, p := range editionPages[1:] {
		if p.Sequence < d {
			d = p.Sequence
		}
	}
	return d, true
}
