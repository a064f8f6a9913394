package spreadsheet

import (
	"sort"
)

const (
	// rows per index bucket, same granularity as worksheet chunks
	regionBucketRows = 256

	// regions spanning more buckets than this live in the wide set
	maxRegionBuckets = 64
)

// RegionEntry is one (region, data) pair held by a RegionDataStore
type RegionEntry[T comparable] struct {
	ID     int
	Region Region
	Data   T
}

type regionMove struct {
	id     int
	before Region
}

// RegionRestoreData records how a structural edit changed a store
type RegionRestoreData[T comparable] struct {
	moved   []regionMove
	removed []RegionEntry[T]
}

// Empty reports whether the edit left the store untouched
func (d RegionRestoreData[T]) Empty() bool {
	return len(d.moved) == 0 && len(d.removed) == 0
}

// RegionDataStore indexes data by the regions they are filed under.
// entries are bucketed by row band; open-ended and very tall regions go to a
// wide set that every query scans.
type RegionDataStore[T comparable] struct {
	entries map[int]*RegionEntry[T]
	buckets map[int]map[int]struct{} // bucket -> entry ids
	wide    map[int]struct{}
	byData  map[T]map[int]struct{}
	nextID  int
}

func NewRegionDataStore[T comparable]() *RegionDataStore[T] {
	return &RegionDataStore[T]{
		entries: make(map[int]*RegionEntry[T]),
		buckets: make(map[int]map[int]struct{}),
		wide:    make(map[int]struct{}),
		byData:  make(map[T]map[int]struct{}),
		nextID:  1,
	}
}

func bucketSpan(r Region) (int, int, bool) {
	if r.Bottom == MaxIndex {
		return 0, 0, false
	}
	first, last := r.Top/regionBucketRows, r.Bottom/regionBucketRows
	if last-first >= maxRegionBuckets {
		return 0, 0, false
	}
	return first, last, true
}

func (s *RegionDataStore[T]) index(e *RegionEntry[T]) {
	first, last, ok := bucketSpan(e.Region)
	if !ok {
		s.wide[e.ID] = struct{}{}
		return
	}
	for b := first; b <= last; b++ {
		ids, exists := s.buckets[b]
		if !exists {
			ids = make(map[int]struct{})
			s.buckets[b] = ids
		}
		ids[e.ID] = struct{}{}
	}
}

func (s *RegionDataStore[T]) unindex(e *RegionEntry[T]) {
	first, last, ok := bucketSpan(e.Region)
	if !ok {
		delete(s.wide, e.ID)
		return
	}
	for b := first; b <= last; b++ {
		if ids, exists := s.buckets[b]; exists {
			delete(ids, e.ID)
			if len(ids) == 0 {
				delete(s.buckets, b)
			}
		}
	}
}

func (s *RegionDataStore[T]) insert(e *RegionEntry[T]) {
	s.entries[e.ID] = e
	s.index(e)
	ids, exists := s.byData[e.Data]
	if !exists {
		ids = make(map[int]struct{})
		s.byData[e.Data] = ids
	}
	ids[e.ID] = struct{}{}
}

func (s *RegionDataStore[T]) delete(e *RegionEntry[T]) {
	s.unindex(e)
	delete(s.entries, e.ID)
	if ids, exists := s.byData[e.Data]; exists {
		delete(ids, e.ID)
		if len(ids) == 0 {
			delete(s.byData, e.Data)
		}
	}
}

// Add files data under region. adding the same pair twice keeps one entry.
func (s *RegionDataStore[T]) Add(region Region, data T) {
	for id := range s.byData[data] {
		if s.entries[id].Region == region {
			return
		}
	}
	e := &RegionEntry[T]{ID: s.nextID, Region: region, Data: data}
	s.nextID++
	s.insert(e)
}

// candidates returns the ids of entries that may intersect region
func (s *RegionDataStore[T]) candidates(region Region) []int {
	seen := make(map[int]struct{})
	first, last, ok := bucketSpan(region)
	if !ok {
		for id := range s.entries {
			seen[id] = struct{}{}
		}
	} else {
		for b := first; b <= last; b++ {
			for id := range s.buckets[b] {
				seen[id] = struct{}{}
			}
		}
		for id := range s.wide {
			seen[id] = struct{}{}
		}
	}
	ids := make([]int, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Entries returns the entries whose region intersects region, oldest first
func (s *RegionDataStore[T]) Entries(region Region) []RegionEntry[T] {
	var out []RegionEntry[T]
	for _, id := range s.candidates(region) {
		if e := s.entries[id]; e.Region.Intersects(region) {
			out = append(out, *e)
		}
	}
	return out
}

// GetData returns the distinct data filed under regions intersecting region
func (s *RegionDataStore[T]) GetData(region Region) []T {
	var out []T
	seen := make(map[T]struct{})
	for _, e := range s.Entries(region) {
		if _, dup := seen[e.Data]; dup {
			continue
		}
		seen[e.Data] = struct{}{}
		out = append(out, e.Data)
	}
	return out
}

// Any reports whether some entry intersects region
func (s *RegionDataStore[T]) Any(region Region) bool {
	for _, id := range s.candidates(region) {
		if s.entries[id].Region.Intersects(region) {
			return true
		}
	}
	return false
}

// RegionsOf returns the regions data is filed under
func (s *RegionDataStore[T]) RegionsOf(data T) []Region {
	ids := make([]int, 0, len(s.byData[data]))
	for id := range s.byData[data] {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]Region, len(ids))
	for i, id := range ids {
		out[i] = s.entries[id].Region
	}
	return out
}

// EntriesOf returns the entries tied to data, oldest first
func (s *RegionDataStore[T]) EntriesOf(data T) []RegionEntry[T] {
	ids := make([]int, 0, len(s.byData[data]))
	for id := range s.byData[data] {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]RegionEntry[T], len(ids))
	for i, id := range ids {
		out[i] = *s.entries[id]
	}
	return out
}

// Reinsert puts back an entry taken from EntriesOf under its original id
func (s *RegionDataStore[T]) Reinsert(e RegionEntry[T]) {
	if _, exists := s.entries[e.ID]; exists {
		return
	}
	s.insert(&e)
}

// Clear removes every entry tied to data
func (s *RegionDataStore[T]) Clear(data T) {
	for id := range s.byData[data] {
		s.delete(s.entries[id])
	}
}

// Remove removes the single entry filing data under region
func (s *RegionDataStore[T]) Remove(region Region, data T) {
	for id := range s.byData[data] {
		if e := s.entries[id]; e.Region == region {
			s.delete(e)
			return
		}
	}
}

func (s *RegionDataStore[T]) Len() int {
	return len(s.entries)
}

func (s *RegionDataStore[T]) sortedIDs() []int {
	ids := make([]int, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func (s *RegionDataStore[T]) move(e *RegionEntry[T], region Region) {
	s.unindex(e)
	e.Region = region
	s.index(e)
}

// InsertRowColAt rebases every entry for count rows or columns inserted
// before index
func (s *RegionDataStore[T]) InsertRowColAt(axis Axis, index, count int) RegionRestoreData[T] {
	var restore RegionRestoreData[T]
	for _, id := range s.sortedIDs() {
		e := s.entries[id]
		after := e.Region.insertAt(axis, index, count)
		if after != e.Region {
			restore.moved = append(restore.moved, regionMove{id: id, before: e.Region})
			s.move(e, after)
		}
	}
	return restore
}

// RemoveRowColAt rebases every entry for count rows or columns removed at
// index. entries lying entirely inside the removed band are dropped.
func (s *RegionDataStore[T]) RemoveRowColAt(axis Axis, index, count int) RegionRestoreData[T] {
	var restore RegionRestoreData[T]
	for _, id := range s.sortedIDs() {
		e := s.entries[id]
		after, ok := e.Region.removeAt(axis, index, count)
		if !ok {
			restore.removed = append(restore.removed, *e)
			s.delete(e)
			continue
		}
		if after != e.Region {
			restore.moved = append(restore.moved, regionMove{id: id, before: e.Region})
			s.move(e, after)
		}
	}
	return restore
}

// Restore undoes a structural edit recorded by InsertRowColAt or
// RemoveRowColAt
func (s *RegionDataStore[T]) Restore(data RegionRestoreData[T]) {
	for i := len(data.moved) - 1; i >= 0; i-- {
		m := data.moved[i]
		if e, exists := s.entries[m.id]; exists {
			s.move(e, m.before)
		}
	}
	for _, removed := range data.removed {
		e := removed
		s.insert(&e)
	}
}
