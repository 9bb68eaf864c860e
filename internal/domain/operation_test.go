package domain_test

import (
	"encoding/json"
	"testing"

	"collaborative-canvas/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperationJSON_UndoAlwaysCarriesBy(t *testing.T) {
	op := domain.Operation{Type: domain.OpUndo, OpID: "op-2", TargetOpID: "op-1", Timestamp: 42}

	b, err := json.Marshal(op)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"undo","opId":"op-2","targetOpId":"op-1","ts":42,"by":""}`, string(b))
}

func TestOperationJSON_RedoWithActor(t *testing.T) {
	op := domain.Operation{Type: domain.OpRedo, OpID: "op-3", TargetOpID: "op-1", Timestamp: 43, By: "conn-1"}

	b, err := json.Marshal(op)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"redo","opId":"op-3","targetOpId":"op-1","ts":43,"by":"conn-1"}`, string(b))

	var back domain.Operation
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, op, back)
}

func TestOperationJSON_StrokeOmitsBy(t *testing.T) {
	op := domain.Operation{Type: domain.OpStroke, OpID: "op-1", Stroke: json.RawMessage(`{"n":1}`), Timestamp: 41}

	b, err := json.Marshal(op)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"stroke","opId":"op-1","stroke":{"n":1},"ts":41}`, string(b))
}

func TestOperationJSON_SnapshotHistoryKeepsBy(t *testing.T) {
	snap := domain.Snapshot{
		Strokes: []domain.Operation{},
		History: []domain.Operation{{Type: domain.OpUndo, OpID: "op-2", TargetOpID: "op-1", Timestamp: 1}},
	}

	b, err := json.Marshal(snap)
	require.NoError(t, err)
	assert.JSONEq(t, `{"strokes":[],"history":[{"type":"undo","opId":"op-2","targetOpId":"op-1","ts":1,"by":""}]}`, string(b))
}
