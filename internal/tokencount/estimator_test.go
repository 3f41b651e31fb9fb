package tokencount

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeuristicEmpty(t *testing.T) {
	assert.Equal(t, 0, Heuristic(""))
}

func TestHeuristicASCII(t *testing.T) {
	// 8 ascii chars * 0.5 = 4.0, floor+1 = 5
	assert.Equal(t, 5, Heuristic("12345678"))
}

func TestHeuristicCJK(t *testing.T) {
	// 4 CJK chars * 2.0 = 8.0, floor+1 = 9
	assert.Equal(t, 9, Heuristic("用户喜欢"))
}

func TestHeuristicOverEstimatesNonASCII(t *testing.T) {
	ascii := strings.Repeat("a", 40)
	cjk := strings.Repeat("辣", 40)
	assert.Greater(t, Heuristic(cjk), Heuristic(ascii))
}

func TestEstimateFallsBackWithoutEncoder(t *testing.T) {
	e := &Estimator{cache: NewCache(CacheConfig{})}
	got := e.Estimate("hello world")
	assert.Equal(t, Heuristic("hello world"), got)
}

func TestEstimateCaches(t *testing.T) {
	e := &Estimator{cache: NewCache(CacheConfig{})}
	text := "repeated text for cache check"
	first := e.Estimate(text)
	_, ok := e.cache.Get(text)
	assert.True(t, ok)
	second := e.Estimate(text)
	assert.Equal(t, first, second)
}
