package vault

import (
	"errors"
	"math/big"

	"stablecore/crypto"
)

var (
	errIndexExists   = errors.New("sorted index: vault already listed")
	errIndexNotFound = errors.New("sorted index: vault not listed")
	errIndexScore    = errors.New("sorted index: score must be positive")
	errIndexOwner    = errors.New("sorted index: owner required")
)

// ScoreFunc resolves the live risk score for a listed vault. The index calls
// it during hint validation and search, so a hint computed before an
// interleaving mutation is simply discarded.
type ScoreFunc func(asset string, owner crypto.Address) (*big.Int, error)

// node is one arena slot. Slot 0 is the nil sentinel, so prev/next of 0 mean
// head/tail.
type node struct {
	owner  crypto.Address
	asset  string
	prev   uint64
	next   uint64
	exists bool
}

type listHead struct {
	head uint64
	tail uint64
	size uint64
}

// SortedIndex keeps one doubly-linked list per collateral, ordered by
// non-increasing risk score from head to tail. Nodes live in a shared arena
// indexed by stable uint64 handles with a per-asset owner lookup, so splices
// are O(1) and removal never shifts other nodes.
type SortedIndex struct {
	score ScoreFunc
	nodes []node
	free  []uint64
	lists map[string]*listHead
	ids   map[string]map[string]uint64
}

// NewSortedIndex constructs an empty index bound to its score oracle.
func NewSortedIndex(score ScoreFunc) *SortedIndex {
	return &SortedIndex{
		score: score,
		nodes: make([]node, 1), // slot 0 reserved as the nil sentinel
		lists: make(map[string]*listHead),
		ids:   make(map[string]map[string]uint64),
	}
}

func ownerKey(owner crypto.Address) string {
	return string(owner.Bytes())
}

func (s *SortedIndex) list(asset string) *listHead {
	l, ok := s.lists[asset]
	if !ok {
		l = &listHead{}
		s.lists[asset] = l
	}
	return l
}

func (s *SortedIndex) id(asset string, owner crypto.Address) uint64 {
	byOwner, ok := s.ids[asset]
	if !ok {
		return 0
	}
	return byOwner[ownerKey(owner)]
}

// Contains reports whether the vault is listed for the asset.
func (s *SortedIndex) Contains(asset string, owner crypto.Address) bool {
	return s.id(asset, owner) != 0
}

// Size returns the number of listed vaults for the asset.
func (s *SortedIndex) Size(asset string) uint64 {
	l, ok := s.lists[asset]
	if !ok {
		return 0
	}
	return l.size
}

// Head returns the highest-score owner, ok=false when the list is empty.
func (s *SortedIndex) Head(asset string) (crypto.Address, bool) {
	l, ok := s.lists[asset]
	if !ok || l.head == 0 {
		return crypto.Address{}, false
	}
	return s.nodes[l.head].owner, true
}

// Tail returns the lowest-score owner, ok=false when the list is empty.
func (s *SortedIndex) Tail(asset string) (crypto.Address, bool) {
	l, ok := s.lists[asset]
	if !ok || l.tail == 0 {
		return crypto.Address{}, false
	}
	return s.nodes[l.tail].owner, true
}

// Next returns the neighbour towards the tail (smaller score).
func (s *SortedIndex) Next(asset string, owner crypto.Address) (crypto.Address, bool) {
	id := s.id(asset, owner)
	if id == 0 || s.nodes[id].next == 0 {
		return crypto.Address{}, false
	}
	return s.nodes[s.nodes[id].next].owner, true
}

// Prev returns the neighbour towards the head (larger score).
func (s *SortedIndex) Prev(asset string, owner crypto.Address) (crypto.Address, bool) {
	id := s.id(asset, owner)
	if id == 0 || s.nodes[id].prev == 0 {
		return crypto.Address{}, false
	}
	return s.nodes[s.nodes[id].prev].owner, true
}

func (s *SortedIndex) alloc(asset string, owner crypto.Address) uint64 {
	var id uint64
	if n := len(s.free); n > 0 {
		id = s.free[n-1]
		s.free = s.free[:n-1]
		s.nodes[id] = node{owner: owner.Clone(), asset: asset, exists: true}
	} else {
		s.nodes = append(s.nodes, node{owner: owner.Clone(), asset: asset, exists: true})
		id = uint64(len(s.nodes) - 1)
	}
	byOwner, ok := s.ids[asset]
	if !ok {
		byOwner = make(map[string]uint64)
		s.ids[asset] = byOwner
	}
	byOwner[ownerKey(owner)] = id
	return id
}

func (s *SortedIndex) release(id uint64) {
	n := s.nodes[id]
	if byOwner, ok := s.ids[n.asset]; ok {
		delete(byOwner, ownerKey(n.owner))
	}
	s.nodes[id] = node{}
	s.free = append(s.free, id)
}

func (s *SortedIndex) nodeScore(id uint64) (*big.Int, error) {
	n := s.nodes[id]
	return s.score(n.asset, n.owner)
}

// validInsertPosition reports whether splicing between prevID and nextID
// keeps the list ordered for the given score.
func (s *SortedIndex) validInsertPosition(asset string, prevID, nextID uint64, score *big.Int) (bool, error) {
	l := s.list(asset)
	if prevID == 0 && nextID == 0 {
		return l.head == 0, nil
	}
	if prevID == 0 {
		if l.head != nextID {
			return false, nil
		}
		nextScore, err := s.nodeScore(nextID)
		if err != nil {
			return false, err
		}
		return score.Cmp(nextScore) >= 0, nil
	}
	if nextID == 0 {
		if l.tail != prevID {
			return false, nil
		}
		prevScore, err := s.nodeScore(prevID)
		if err != nil {
			return false, err
		}
		return score.Cmp(prevScore) <= 0, nil
	}
	if s.nodes[prevID].next != nextID {
		return false, nil
	}
	prevScore, err := s.nodeScore(prevID)
	if err != nil {
		return false, err
	}
	nextScore, err := s.nodeScore(nextID)
	if err != nil {
		return false, err
	}
	return prevScore.Cmp(score) >= 0 && score.Cmp(nextScore) >= 0, nil
}

// descend walks from startID towards the tail until a valid position opens.
func (s *SortedIndex) descend(asset string, startID uint64, score *big.Int) (uint64, uint64, error) {
	l := s.list(asset)
	if startID == l.head {
		headScore, err := s.nodeScore(l.head)
		if err != nil {
			return 0, 0, err
		}
		if score.Cmp(headScore) >= 0 {
			return 0, l.head, nil
		}
	}
	prevID := startID
	nextID := s.nodes[startID].next
	for prevID != 0 {
		ok, err := s.validInsertPosition(asset, prevID, nextID, score)
		if err != nil {
			return 0, 0, err
		}
		if ok {
			break
		}
		prevID = nextID
		if prevID != 0 {
			nextID = s.nodes[prevID].next
		}
	}
	return prevID, nextID, nil
}

// ascend walks from startID towards the head until a valid position opens.
func (s *SortedIndex) ascend(asset string, startID uint64, score *big.Int) (uint64, uint64, error) {
	l := s.list(asset)
	if startID == l.tail {
		tailScore, err := s.nodeScore(l.tail)
		if err != nil {
			return 0, 0, err
		}
		if score.Cmp(tailScore) <= 0 {
			return l.tail, 0, nil
		}
	}
	nextID := startID
	prevID := s.nodes[startID].prev
	for nextID != 0 {
		ok, err := s.validInsertPosition(asset, prevID, nextID, score)
		if err != nil {
			return 0, 0, err
		}
		if ok {
			break
		}
		nextID = prevID
		if nextID != 0 {
			prevID = s.nodes[nextID].prev
		}
	}
	return prevID, nextID, nil
}

// findInsertPosition resolves the final splice point, trusting hints only as
// far as the live scores allow.
func (s *SortedIndex) findInsertPosition(asset string, score *big.Int, prevHint, nextHint crypto.Address) (uint64, uint64, error) {
	l := s.list(asset)
	prevID := s.id(asset, prevHint)
	nextID := s.id(asset, nextHint)

	if prevID != 0 {
		prevScore, err := s.nodeScore(prevID)
		if err != nil {
			return 0, 0, err
		}
		if score.Cmp(prevScore) > 0 {
			// The hinted predecessor now ranks below us; drop it.
			prevID = 0
		}
	}
	if nextID != 0 {
		nextScore, err := s.nodeScore(nextID)
		if err != nil {
			return 0, 0, err
		}
		if score.Cmp(nextScore) < 0 {
			// The hinted successor now ranks above us; drop it.
			nextID = 0
		}
	}

	switch {
	case prevID == 0 && nextID == 0:
		if l.head == 0 {
			return 0, 0, nil
		}
		return s.descend(asset, l.head, score)
	case prevID == 0:
		return s.ascend(asset, nextID, score)
	default:
		return s.descend(asset, prevID, score)
	}
}

// Insert adds the vault at its score-ordered position. Hints name neighbour
// owners; zero addresses mean no hint.
func (s *SortedIndex) Insert(asset string, owner crypto.Address, score *big.Int, prevHint, nextHint crypto.Address) error {
	if owner.IsZero() {
		return errIndexOwner
	}
	if score == nil || score.Sign() <= 0 {
		return errIndexScore
	}
	if s.Contains(asset, owner) {
		return errIndexExists
	}

	prevID := s.id(asset, prevHint)
	nextID := s.id(asset, nextHint)
	ok, err := s.validInsertPosition(asset, prevID, nextID, score)
	if err != nil {
		return err
	}
	if !ok {
		prevID, nextID, err = s.findInsertPosition(asset, score, prevHint, nextHint)
		if err != nil {
			return err
		}
	}

	id := s.alloc(asset, owner)
	l := s.list(asset)
	s.nodes[id].prev = prevID
	s.nodes[id].next = nextID
	if prevID == 0 {
		l.head = id
	} else {
		s.nodes[prevID].next = id
	}
	if nextID == 0 {
		l.tail = id
	} else {
		s.nodes[nextID].prev = id
	}
	l.size++
	return nil
}

// Remove unlinks the vault from the asset's list.
func (s *SortedIndex) Remove(asset string, owner crypto.Address) error {
	id := s.id(asset, owner)
	if id == 0 {
		return errIndexNotFound
	}
	l := s.list(asset)
	n := s.nodes[id]
	if n.prev == 0 {
		l.head = n.next
	} else {
		s.nodes[n.prev].next = n.next
	}
	if n.next == 0 {
		l.tail = n.prev
	} else {
		s.nodes[n.next].prev = n.prev
	}
	l.size--
	s.release(id)
	return nil
}

// ReInsert moves a listed vault to the position matching its new score.
func (s *SortedIndex) ReInsert(asset string, owner crypto.Address, score *big.Int, prevHint, nextHint crypto.Address) error {
	if !s.Contains(asset, owner) {
		return errIndexNotFound
	}
	if score == nil || score.Sign() <= 0 {
		return errIndexScore
	}
	if err := s.Remove(asset, owner); err != nil {
		return err
	}
	return s.Insert(asset, owner, score, prevHint, nextHint)
}

// Owners returns the listed owners head to tail; used by queries and tests.
func (s *SortedIndex) Owners(asset string) []crypto.Address {
	l, ok := s.lists[asset]
	if !ok {
		return nil
	}
	owners := make([]crypto.Address, 0, l.size)
	for id := l.head; id != 0; id = s.nodes[id].next {
		owners = append(owners, s.nodes[id].owner)
	}
	return owners
}
