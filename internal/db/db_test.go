package db

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/creatory/creatory/internal/creatory"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	pool, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })
	return &DB{Pool: pool}, mock
}

func TestSaveRunWritesRunAndStepsInOneTransaction(t *testing.T) {
	d, mock := newMock(t)
	now := time.Now()

	run := &creatory.WorkflowRun{
		ID: "run-1", WorkspaceID: "ws-1", TemplateID: "tpl-1",
		Status: creatory.RunStatusFailed, CreatedBy: "user-1",
		StartedAt: &now, EndedAt: &now, CreatedAt: now,
	}
	steps := []creatory.RunStep{
		{ID: "s1", NodeKey: "a", Status: creatory.RunStatusSucceeded, Attempt: 1, CreatedAt: now},
		{ID: "s2", NodeKey: "b", Status: creatory.RunStatusFailed, Attempt: 1,
			Error: map[string]any{"message": "boom"}, CreatedAt: now},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO workflow_runs").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM workflow_run_steps").WithArgs("run-1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO workflow_run_steps").
		WithArgs("s1", "run-1", 0, "a", "succeeded", 1, sqlmock.AnyArg(), sqlmock.AnyArg(), nil, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO workflow_run_steps").
		WithArgs("s2", "run-1", 1, "b", "failed", 1, sqlmock.AnyArg(), sqlmock.AnyArg(), []byte(`{"message":"boom"}`), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, d.SaveRun(context.Background(), run, steps))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveRunRollsBackWhenAStepFails(t *testing.T) {
	d, mock := newMock(t)
	run := &creatory.WorkflowRun{ID: "run-1", Status: creatory.RunStatusSucceeded}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO workflow_runs").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM workflow_run_steps").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO workflow_run_steps").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := d.SaveRun(context.Background(), run, []creatory.RunStep{{ID: "s1", NodeKey: "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert run step")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRunNotFound(t *testing.T) {
	d, mock := newMock(t)
	mock.ExpectQuery("FROM workflow_runs WHERE id").WithArgs("missing").WillReturnError(sql.ErrNoRows)

	_, err := d.GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, creatory.ErrNotFound)
}

func TestListRunStepsDecodesNullableColumns(t *testing.T) {
	d, mock := newMock(t)
	now := time.Now()

	rows := sqlmock.NewRows([]string{"id", "node_key", "status", "attempt", "input_json", "output_json", "error_json", "started_at", "ended_at", "created_at"}).
		AddRow("s1", "research", "succeeded", 1, []byte(`{"node":"research"}`), []byte(`{}`), nil, now, now, now).
		AddRow("s2", "review", "waiting_human", 1, []byte(`{}`), []byte(`{"human_gate":true}`), nil, now, nil, now)
	mock.ExpectQuery("FROM workflow_run_steps WHERE run_id").WithArgs("run-1").WillReturnRows(rows)

	steps, err := d.ListRunSteps(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, "research", steps[0].Input["node"])
	assert.Nil(t, steps[0].Error)
	assert.NotNil(t, steps[0].EndedAt)
	assert.Equal(t, creatory.RunStatusWaitingHuman, steps[1].Status)
	assert.Nil(t, steps[1].EndedAt)
	assert.Equal(t, true, steps[1].Output["human_gate"])
}

func TestCreateTemplateDuplicateIsConflict(t *testing.T) {
	d, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO workflow_templates").WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	err := d.CreateTemplate(context.Background(), &creatory.Template{ID: "t1", Name: "pipeline", Version: 1})
	assert.ErrorIs(t, err, creatory.ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTemplateLoadsGraph(t *testing.T) {
	d, mock := newMock(t)
	now := time.Now()

	mock.ExpectQuery("FROM workflow_templates WHERE id").WithArgs("t1").WillReturnRows(
		sqlmock.NewRows([]string{"id", "workspace_id", "name", "description", "version", "definition_json", "is_published", "created_by", "created_at", "updated_at"}).
			AddRow("t1", "ws-1", "pipeline", "", 1, []byte(`{}`), false, "u1", now, now))
	mock.ExpectQuery("FROM workflow_nodes WHERE template_id .* NULLS LAST").WithArgs("t1").WillReturnRows(
		sqlmock.NewRows([]string{"id", "node_key", "node_type", "config_json", "position_x", "position_y"}).
			AddRow("n1", "research", "agent", []byte(`{"prompt":"hi"}`), 60.0, 120.0).
			AddRow("n2", "notes", "memory", []byte(`{}`), nil, nil))
	mock.ExpectQuery("FROM workflow_edges WHERE template_id").WithArgs("t1").WillReturnRows(
		sqlmock.NewRows([]string{"id", "source_node_key", "target_node_key", "condition_expr", "metadata_json"}).
			AddRow("e1", "research", "notes", "", []byte(`{}`)))

	tpl, err := d.GetTemplate(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, tpl.Nodes, 2)
	assert.Equal(t, creatory.NodeTypeAgent, tpl.Nodes[0].Type)
	require.NotNil(t, tpl.Nodes[0].PositionX)
	assert.Equal(t, 60.0, *tpl.Nodes[0].PositionX)
	assert.Nil(t, tpl.Nodes[1].PositionX)
	assert.Equal(t, "hi", tpl.Nodes[0].Config["prompt"])
	require.Len(t, tpl.Edges, 1)
	assert.Equal(t, "t1", tpl.Edges[0].TemplateID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendChunksContinuesIndex(t *testing.T) {
	d, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs("src-1").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("src-1"))
	mock.ExpectQuery("COALESCE").WithArgs("src-1").WillReturnRows(sqlmock.NewRows([]string{"next"}).AddRow(3))
	mock.ExpectExec("INSERT INTO knowledge_chunks").
		WithArgs("c1", "src-1", 3, "first", nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO knowledge_chunks").
		WithArgs("c2", "src-1", 4, "second", nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	chunks := []*creatory.KnowledgeChunk{{ID: "c1", Content: "first"}, {ID: "c2", Content: "second"}}
	require.NoError(t, d.AppendChunks(context.Background(), "src-1", chunks))
	assert.Equal(t, 3, chunks[0].ChunkIndex)
	assert.Equal(t, 4, chunks[1].ChunkIndex)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendChunksUnknownSource(t *testing.T) {
	d, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs("nope").WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	err := d.AppendChunks(context.Background(), "nope", []*creatory.KnowledgeChunk{{ID: "c1"}})
	assert.ErrorIs(t, err, creatory.ErrNotFound)
}

func TestRetrievalChunks(t *testing.T) {
	d, mock := newMock(t)

	mock.ExpectQuery(`FROM knowledge_chunks c JOIN knowledge_sources s .*ORDER BY s\.created_at DESC, s\.id ASC, c\.chunk_index ASC`).
		WithArgs("ws-1", 200).WillReturnRows(
		sqlmock.NewRows([]string{"c.id", "s.id", "s.title", "c.content", "c.chunk_index"}).
			AddRow("c1", "s1", "Latte guide", "milk foam basics", 0).
			AddRow("c2", "s1", "Latte guide", "pouring hearts", 1))

	chunks, err := d.RetrievalChunks(context.Background(), "ws-1", 200)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "Latte guide", chunks[1].SourceTitle)
	assert.Equal(t, 1, chunks[1].ChunkIndex)
}

func TestListSourcesOrdersTiesByID(t *testing.T) {
	d, mock := newMock(t)

	mock.ExpectQuery(`FROM knowledge_sources WHERE workspace_id = \$1 ORDER BY created_at DESC, id ASC`).
		WithArgs("ws-1", 50, 0).WillReturnError(sql.ErrConnDone)

	_, err := d.ListSources(context.Background(), "ws-1", creatory.Page{})
	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListAgentsSystemAgentsHaveNoWorkspace(t *testing.T) {
	d, mock := newMock(t)
	now := time.Now()

	mock.ExpectQuery("FROM agents").WithArgs("ws-1", true, 50, 0).WillReturnRows(
		sqlmock.NewRows([]string{"id", "workspace_id", "name", "slug", "description", "persona_prompt", "config_json", "is_system", "created_at"}).
			AddRow("a1", nil, "Global Helper", "helper", "", "", []byte(`{}`), true, now).
			AddRow("a2", "ws-1", "Main Director Agent", "main-director", "", "", []byte(`{"mode":"director"}`), true, now))

	agents, err := d.ListAgents(context.Background(), "ws-1", true, creatory.Page{})
	require.NoError(t, err)
	require.Len(t, agents, 2)
	assert.Nil(t, agents[0].WorkspaceID)
	require.NotNil(t, agents[1].WorkspaceID)
	assert.Equal(t, "ws-1", *agents[1].WorkspaceID)
	assert.Equal(t, "director", agents[1].Config["mode"])
}

func TestCreateWorkspaceAddsOwnerMembership(t *testing.T) {
	d, mock := newMock(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO workspaces").WithArgs("ws-1", "Studio", "studio", "u1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO workspace_memberships").WithArgs("m1", "ws-1", "u1", "owner", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ws := &creatory.Workspace{ID: "ws-1", Name: "Studio", Slug: "studio", OwnerID: "u1", CreatedAt: now}
	m := &creatory.Membership{ID: "m1", WorkspaceID: "ws-1", UserID: "u1", Role: creatory.RoleOwner, CreatedAt: now}
	require.NoError(t, d.CreateWorkspace(context.Background(), ws, m))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertConceptReturnsStoredID(t *testing.T) {
	d, mock := newMock(t)
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery("ON CONFLICT \\(workspace_id, concept_key\\)").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("existing", created))

	c := &creatory.ConceptNode{ID: "fresh", WorkspaceID: "ws-1", ConceptKey: "latte", Label: "Latte"}
	require.NoError(t, d.UpsertConcept(context.Background(), c))
	assert.Equal(t, "existing", c.ID)
	assert.Equal(t, created, c.CreatedAt)
}
