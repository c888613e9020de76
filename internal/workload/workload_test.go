package workload

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"planline/internal/domain"
)

func doing(difficulty int) domain.Task {
	return domain.Task{Status: domain.StatusDoing, Difficulty: &difficulty}
}

func TestScore(t *testing.T) {
	tasks := []domain.Task{
		doing(3),
		doing(5),
		{Status: domain.StatusTodo, Difficulty: intp(7)},  // not in flight
		{Status: domain.StatusDone, Difficulty: intp(9)},  // finished
		{Status: domain.StatusDoing},                      // unestimated counts as 1
	}
	assert.Equal(t, 9, Score(tasks))
	assert.Equal(t, 0, Score(nil))
}

func TestCapacity(t *testing.T) {
	assert.Equal(t, 6.0, Capacity(10, domain.LevelJunior, nil))
	assert.Equal(t, 10.0, Capacity(10, domain.LevelMid, nil))
	assert.Equal(t, 13.0, Capacity(10, domain.LevelSenior, nil))
	assert.Equal(t, 12.0, Capacity(10, domain.LevelSpecialist, nil))
	assert.Equal(t, 11.0, Capacity(10, domain.LevelLead, nil))

	// unknown level falls back to 1.0
	assert.Equal(t, 10.0, Capacity(10, "intern", nil))

	// config overrides win
	custom := map[domain.MemberLevel]float64{domain.LevelJunior: 0.5}
	assert.Equal(t, 5.0, Capacity(10, domain.LevelJunior, custom))
}

func TestStatusThresholds(t *testing.T) {
	cases := []struct {
		score    int
		capacity float64
		want     Status
	}{
		{16, 10, StatusImpossible}, // 1.6
		{15, 10, StatusTight},      // exactly 1.5 is not impossible
		{13, 10, StatusTight},      // 1.3
		{12, 10, StatusHealthy},    // exactly 1.2 is not tight
		{8, 10, StatusHealthy},     // 0.8
		{7, 10, StatusRelaxed},     // exactly 0.7 is not healthy
		{4, 10, StatusRelaxed},     // 0.4
		{3, 10, StatusIdle},        // exactly 0.3 is not relaxed
		{0, 10, StatusIdle},
		{5, 0, StatusImpossible}, // work but no capacity
		{0, 0, StatusIdle},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, StatusFor(c.score, c.capacity), "score=%d capacity=%v", c.score, c.capacity)
	}
}

func TestWouldBeImpossible(t *testing.T) {
	current := []domain.Task{doing(6), doing(4)} // score 10, mid capacity 10

	assert.True(t, WouldBeImpossible(current, doing(8), 10, domain.LevelMid, nil))   // 18/10
	assert.False(t, WouldBeImpossible(current, doing(5), 10, domain.LevelMid, nil))  // 15/10 exactly
	assert.False(t, WouldBeImpossible(nil, doing(10), 10, domain.LevelMid, nil))     // 10/10
}

func TestEvaluate(t *testing.T) {
	snap := Evaluate([]domain.Task{doing(6)}, 10, domain.LevelJunior, nil)
	assert.Equal(t, 6, snap.Score)
	assert.Equal(t, 6.0, snap.Capacity)
	assert.Equal(t, 1.0, snap.Ratio)
	assert.Equal(t, StatusHealthy, snap.Status)
}

func intp(v int) *int { return &v }
