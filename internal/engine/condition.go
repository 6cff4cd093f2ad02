package engine

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// ConditionCache is a thread-safe LRU cache of compiled edge-condition
// programs: expr-lang compile cost is real enough per-edge that an
// LRU is worth keeping.
type ConditionCache struct {
	capacity int
	cache    map[string]*list.Element
	lruList  *list.List
	mu       sync.RWMutex
}

type cacheEntry struct {
	key     string
	program *vm.Program
}

// NewConditionCache creates a cache holding up to capacity compiled programs.
func NewConditionCache(capacity int) *ConditionCache {
	if capacity <= 0 {
		capacity = 100
	}
	return &ConditionCache{
		capacity: capacity,
		cache:    make(map[string]*list.Element),
		lruList:  list.New(),
	}
}

func (cc *ConditionCache) get(condition string) (*vm.Program, bool) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	if element, found := cc.cache[condition]; found {
		cc.lruList.MoveToFront(element)
		return element.Value.(*cacheEntry).program, true
	}
	return nil, false
}

func (cc *ConditionCache) put(condition string, program *vm.Program) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	if element, found := cc.cache[condition]; found {
		cc.lruList.MoveToFront(element)
		element.Value.(*cacheEntry).program = program
		return
	}
	element := cc.lruList.PushFront(&cacheEntry{key: condition, program: program})
	cc.cache[condition] = element
	if cc.lruList.Len() > cc.capacity {
		oldest := cc.lruList.Back()
		if oldest != nil {
			cc.lruList.Remove(oldest)
			delete(cc.cache, oldest.Value.(*cacheEntry).key)
		}
	}
}

func (cc *ConditionCache) compileAndCache(condition string, env interface{}) (*vm.Program, error) {
	if program, found := cc.get(condition); found {
		return program, nil
	}
	program, err := expr.Compile(condition, expr.Env(env), expr.AsBool())
	if err != nil {
		return nil, err
	}
	cc.put(condition, program)
	return program, nil
}

// EvaluateCondition reports whether an edge's condition expression passes
// for env (the {"output": <source node output>, "node": <source node id>}
// binding an edge condition is documented to see, per models.Edge.Condition).
// An empty condition always passes.
func (cc *ConditionCache) EvaluateCondition(condition string, env map[string]interface{}) (bool, error) {
	if condition == "" {
		return true, nil
	}
	program, err := cc.compileAndCache(condition, env)
	if err != nil {
		return false, fmt.Errorf("compile edge condition: %w", err)
	}
	result, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("evaluate edge condition: %w", err)
	}
	boolResult, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("edge condition must return a boolean, got %T", result)
	}
	return boolResult, nil
}
