package database

import (
	"errors"
	"sort"
	"sync"

	"github.com/coder/hnsw"
)

// ErrIndexEmpty is returned when searching an index without people.
var ErrIndexEmpty = errors.New("person index is empty")

// PersonHit is a search result of the person index.
type PersonHit struct {
	Person   KnownPerson
	Distance float64
}

// PersonIndex wraps an HNSW graph over known-people embeddings for
// nearest-neighbor lookups ("who does this face look like").
// Recognition itself uses the exact matcher in facematch.
type PersonIndex struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[string]
	people map[string]*KnownPerson
	dims   int
}

// NewPersonIndex creates a new empty index.
func NewPersonIndex() *PersonIndex {
	return &PersonIndex{
		people: make(map[string]*KnownPerson),
	}
}

func newPersonGraph() *hnsw.Graph[string] {
	g := hnsw.NewGraph[string]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors)
	g.EfSearch = HNSWEfSearch
	g.Distance = hnsw.EuclideanDistance
	return g
}

// Build replaces the index content with the given people.
// People without an embedding, or with a dimension different from the first
// indexed embedding, are left out; the number skipped is returned.
func (x *PersonIndex) Build(people []KnownPerson) int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.buildLocked(people)
}

func (x *PersonIndex) buildLocked(people []KnownPerson) int {
	x.graph = nil
	x.dims = 0
	x.people = make(map[string]*KnownPerson, len(people))

	skipped := 0
	for i := range people {
		if !x.addLocked(&people[i]) {
			skipped++
		}
	}
	return skipped
}

func (x *PersonIndex) addLocked(p *KnownPerson) bool {
	if !p.HasEmbedding() {
		return false
	}
	if x.dims != 0 && len(p.Embedding) != x.dims {
		return false
	}
	if x.graph == nil {
		x.graph = newPersonGraph()
		x.dims = len(p.Embedding)
	}

	person := *p
	x.graph.Add(hnsw.MakeNode(person.ID, person.Embedding))
	x.people[person.ID] = &person
	return true
}

// Upsert adds a person or refreshes an existing entry.
// Returns false if the person cannot be indexed.
func (x *PersonIndex) Upsert(p *KnownPerson) bool {
	x.mu.Lock()
	defer x.mu.Unlock()

	if _, exists := x.people[p.ID]; !exists {
		return x.addLocked(p)
	}

	// Rebuild instead of mutating graph nodes in place; registries are small.
	people := make([]KnownPerson, 0, len(x.people))
	for id, existing := range x.people {
		if id != p.ID {
			people = append(people, *existing)
		}
	}
	sort.Slice(people, func(i, j int) bool { return people[i].ID < people[j].ID })
	people = append(people, *p)
	x.buildLocked(people)
	_, ok := x.people[p.ID]
	return ok
}

// Delete removes a person from search results.
func (x *PersonIndex) Delete(id string) {
	x.mu.Lock()
	defer x.mu.Unlock()

	delete(x.people, id)
	// HNSW deletion is not used, removing from people filters the node out of results.
}

// Count returns the number of indexed people.
func (x *PersonIndex) Count() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.people)
}

// Search returns up to k people nearest to the query, closest first.
func (x *PersonIndex) Search(query []float32, k int) ([]PersonHit, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.graph == nil || len(x.people) == 0 {
		return nil, ErrIndexEmpty
	}
	if len(query) != x.dims {
		return nil, errors.New("query dimension does not match indexed embeddings")
	}
	if k <= 0 {
		return nil, nil
	}

	neighbors := x.graph.Search(query, k*HNSWSearchMultiplier)

	hits := make([]PersonHit, 0, k)
	for _, n := range neighbors {
		person, ok := x.people[n.Key]
		if !ok {
			continue
		}
		hits = append(hits, PersonHit{
			Person:   *person,
			Distance: EuclideanDistance(query, n.Value),
		})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}
