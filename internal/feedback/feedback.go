// Package feedback turns user edits of staged content into durable preference
// memory. Observations are append-only; nothing here ever rewrites history.
package feedback

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/Kvkthecreator/yarnnnn-sub001/internal/config"
	"github.com/Kvkthecreator/yarnnnn-sub001/internal/models"
	"github.com/Kvkthecreator/yarnnnn-sub001/internal/repository"
)

type Engine struct {
	Repo   repository.Repository
	Logger *zap.Logger
	Config config.FeedbackConfig
	Now    func() time.Time
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now().UTC()
}

// DiffOp is one line-level operation transforming original into final.
type DiffOp struct {
	Op   string `json:"op"` // keep, add, del
	Line string `json:"line"`
}

// Record writes the version's edit record and appends one preference
// observation derived from the edits. Call it only when finalContent differs
// from the generated original.
func (e *Engine) Record(ctx context.Context, d *models.Deliverable, version *models.DeliverableVersion, finalContent string) (*models.PreferenceObservation, error) {
	if d == nil || version == nil {
		return nil, fmt.Errorf("deliverable and version are required")
	}

	original := version.Content
	ops := diffLines(splitLines(original), splitLines(finalContent))
	adds, dels := countEdits(ops)
	distance := editDistance(ops)
	category := classify(ops, adds, dels)

	diffJSON, err := json.Marshal(ops)
	if err != nil {
		return nil, err
	}
	dist := decimal.NewFromFloat(distance).Round(5)
	if err := e.Repo.SetVersionEditRecord(ctx, version.ID, original, finalContent, datatypes.JSON(diffJSON), dist); err != nil {
		return nil, err
	}

	observation := &models.PreferenceObservation{
		ID:            uuid.NewString(),
		UserID:        d.UserID,
		DeliverableID: d.ID,
		Binding:       d.Binding,
		Category:      category,
		Note:          buildNote(d.Title, category, adds, dels, ops),
		EditDistance:  dist,
		CreatedAt:     e.now(),
	}
	if err := e.Repo.InsertPreference(ctx, observation); err != nil {
		return nil, err
	}

	e.logActivity(ctx, d.UserID, observation)
	return observation, nil
}

func (e *Engine) logActivity(ctx context.Context, userID string, observation *models.PreferenceObservation) {
	err := e.Repo.InsertActivity(ctx, &models.ActivityLog{
		UserID:    userID,
		EventType: models.ActivityFeedbackRecorded,
		RefID:     observation.ID,
		Summary:   observation.Note,
		CreatedAt: e.now(),
	})
	if err != nil && e.Logger != nil {
		e.Logger.Warn("activity log write failed", zap.Error(err))
	}
}

func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.Trim(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// diffLines computes a line-based LCS diff of a into b.
func diffLines(a, b []string) []DiffOp {
	// lcs[i][j] is the LCS length of a[i:] and b[j:].
	lcs := make([][]int, len(a)+1)
	for i := range lcs {
		lcs[i] = make([]int, len(b)+1)
	}
	for i := len(a) - 1; i >= 0; i-- {
		for j := len(b) - 1; j >= 0; j-- {
			if a[i] == b[j] {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else if lcs[i+1][j] >= lcs[i][j+1] {
				lcs[i][j] = lcs[i+1][j]
			} else {
				lcs[i][j] = lcs[i][j+1]
			}
		}
	}

	var ops []DiffOp
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			ops = append(ops, DiffOp{Op: "keep", Line: a[i]})
			i++
			j++
		case lcs[i+1][j] >= lcs[i][j+1]:
			ops = append(ops, DiffOp{Op: "del", Line: a[i]})
			i++
		default:
			ops = append(ops, DiffOp{Op: "add", Line: b[j]})
			j++
		}
	}
	for ; i < len(a); i++ {
		ops = append(ops, DiffOp{Op: "del", Line: a[i]})
	}
	for ; j < len(b); j++ {
		ops = append(ops, DiffOp{Op: "add", Line: b[j]})
	}
	return ops
}

func countEdits(ops []DiffOp) (adds, dels int) {
	for _, op := range ops {
		switch op.Op {
		case "add":
			adds++
		case "del":
			dels++
		}
	}
	return adds, dels
}

// editDistance is (added + deleted) / total op count, clamped to [0,1].
// Identical content scores 0; full replacement scores 1.
func editDistance(ops []DiffOp) float64 {
	if len(ops) == 0 {
		return 0
	}
	adds, dels := countEdits(ops)
	d := float64(adds+dels) / float64(len(ops))
	if d > 1 {
		d = 1
	}
	return d
}

func classify(ops []DiffOp, adds, dels int) string {
	switch {
	case adds > 0 && dels == 0:
		return models.EditAddition
	case dels > 0 && adds == 0:
		return models.EditDeletion
	case isReorder(ops):
		return models.EditRestructuring
	default:
		return models.EditRewrite
	}
}

// isReorder detects edits that mostly move existing lines: the majority of
// deleted lines reappear verbatim among the added ones.
func isReorder(ops []DiffOp) bool {
	added := make(map[string]int)
	dels := 0
	for _, op := range ops {
		switch op.Op {
		case "add":
			added[op.Line]++
		case "del":
			dels++
		}
	}
	if dels == 0 {
		return false
	}
	moved := 0
	for _, op := range ops {
		if op.Op == "del" && added[op.Line] > 0 {
			added[op.Line]--
			moved++
		}
	}
	return moved*2 > dels
}

func buildNote(title, category string, adds, dels int, ops []DiffOp) string {
	switch category {
	case models.EditAddition:
		return fmt.Sprintf("on %q the user added %d lines the draft was missing; include comparable detail up front", title, adds)
	case models.EditDeletion:
		return fmt.Sprintf("on %q the user cut %d lines; prefer a tighter draft", title, dels)
	case models.EditRestructuring:
		return fmt.Sprintf("on %q the user reordered sections without changing content; match their ordering", title)
	default:
		return fmt.Sprintf("on %q the user rewrote %d of %d lines; the draft missed the expected tone or substance", title, adds+dels, len(ops))
	}
}
