package appstate

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rightsguard/incident-core/internal/kvstore"
	"github.com/rightsguard/incident-core/internal/kvstore/memory"
	"github.com/rightsguard/incident-core/internal/model"
	"github.com/rightsguard/incident-core/internal/shardqueue"
)

const stateKey = "rightsguard-state"

func newQueue(t *testing.T) *shardqueue.Executor {
	t.Helper()
	q := shardqueue.New(shardqueue.Config{Shards: 1, MaxAttempts: 1}, zerolog.Nop())
	t.Cleanup(q.Stop)
	return q
}

func newStore(t *testing.T, backend kvstore.Backend) (*Store, *kvstore.Store) {
	t.Helper()
	kv := kvstore.New(backend, zerolog.Nop())
	return New(context.Background(), kv, stateKey, newQueue(t), zerolog.Nop()), kv
}

func incident(id string, at time.Time) model.Incident {
	return model.Incident{
		ID:        id,
		OwnerID:   model.AnonymousOwner,
		CreatedAt: at,
		Location:  model.Location{Latitude: 37, Longitude: -122, Timestamp: at},
		Status:    model.StatusActive,
	}
}

func TestNew_DefaultsWhenNothingSaved(t *testing.T) {
	s, _ := newStore(t, memory.New())
	st := s.State()
	assert.Empty(t, st.User.TrustedContacts)
	assert.Empty(t, st.User.Jurisdiction)
	assert.False(t, st.User.Premium)
	assert.Empty(t, st.Incidents)
	assert.Equal(t, DefaultLanguage, st.SelectedLanguage)
}

func TestNew_DefaultsWhenSnapshotCorrupt(t *testing.T) {
	b := memory.New()
	require.NoError(t, b.Write(context.Background(), stateKey, []byte(`{"user": [broken`)))
	s, _ := newStore(t, b)
	assert.Equal(t, Default().SelectedLanguage, s.State().SelectedLanguage)
	assert.Empty(t, s.State().Incidents)
}

func TestSnapshot_SaveAndRestore(t *testing.T) {
	ctx := context.Background()
	b := memory.New()
	s, _ := newStore(t, b)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	done := incident("b", now.Add(time.Minute))
	done.Status = model.StatusCompleted

	for _, a := range []Action{
		SetJurisdiction("CA"),
		AddTrustedContact("+15550100"),
		AddTrustedContact("ally@example.com"),
		AppendIncident(incident("a", now)),
		AppendIncident(done),
		SetCaptureActive(true),
	} {
		_, err := s.Dispatch(ctx, a)
		require.NoError(t, err, a.Name())
	}
	require.NoError(t, s.Flush(ctx))

	restored, _ := newStore(t, b)
	got := restored.State()
	want := s.State()
	assert.Equal(t, want.User.TrustedContacts, got.User.TrustedContacts)
	assert.Equal(t, "CA", got.User.Jurisdiction)
	assert.Equal(t, want.IncidentIDs(), got.IncidentIDs())
	for i := range want.Incidents {
		assert.Equal(t, want.Incidents[i].Status, got.Incidents[i].Status)
	}
	assert.False(t, got.CaptureActive, "capture flag is not restored")
}

func TestRestore_ToleratesMissingFields(t *testing.T) {
	b := memory.New()
	require.NoError(t, b.Write(context.Background(), stateKey, []byte(`{"user":{"state":"NY","trustedContacts":["x","x"]},"legacyField":1}`)))
	s, _ := newStore(t, b)
	st := s.State()
	assert.Equal(t, "NY", st.User.Jurisdiction)
	assert.Equal(t, []string{"x"}, st.User.TrustedContacts)
	assert.Equal(t, DefaultLanguage, st.SelectedLanguage)
	assert.NotNil(t, st.Incidents)
}

func TestRestore_StaleLocationKeepsUserData(t *testing.T) {
	b := memory.New()
	doc := `{"user":{"state":"CA","premiumStatus":true,"trustedContacts":["+15550100","ally@example.com"]},` +
		`"currentLocation":{"latitude":37,"longitude":-122},"selectedLanguage":"spanish"}`
	require.NoError(t, b.Write(context.Background(), stateKey, []byte(doc)))

	s, _ := newStore(t, b)
	st := s.State()
	assert.Equal(t, "CA", st.User.Jurisdiction)
	assert.True(t, st.User.Premium)
	assert.Equal(t, []string{"+15550100", "ally@example.com"}, st.User.TrustedContacts)
	assert.Equal(t, "spanish", st.SelectedLanguage)
	assert.Nil(t, st.CurrentLocation)
}

func TestRestore_RepeatedIncidentKeepsFirst(t *testing.T) {
	b := memory.New()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	first := incident("a", now)
	first.Notes = "first"
	second := incident("a", now.Add(time.Minute))
	second.Notes = "second"
	other := incident("b", now)

	kv := kvstore.New(b, zerolog.Nop())
	require.NoError(t, kv.Put(context.Background(), stateKey, map[string]any{
		"user":         map[string]any{"state": "NY", "trustedContacts": []string{"x"}},
		"incidentLogs": []model.Incident{first, second, other},
	}))

	s, _ := newStore(t, b)
	st := s.State()
	assert.Equal(t, "NY", st.User.Jurisdiction)
	assert.Equal(t, []string{"x"}, st.User.TrustedContacts)
	require.Equal(t, []string{"a", "b"}, st.IncidentIDs())
	assert.Equal(t, "first", st.Incidents[0].Notes)
}

func TestSnapshotValidate(t *testing.T) {
	now := time.Now().UTC()
	assert.NoError(t, Snapshot{Incidents: []model.Incident{incident("a", now)}}.Validate())
	assert.ErrorIs(t, Snapshot{Incidents: []model.Incident{incident("a", now), incident("a", now)}}.Validate(), model.ErrDuplicateIncidentID)
	assert.Error(t, Snapshot{CurrentLocation: &model.Location{Latitude: 1, Longitude: 2}}.Validate())
}

func TestAppendIncident_DuplicateRejectedBeforeCommit(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t, memory.New())
	now := time.Now().UTC()

	_, err := s.Dispatch(ctx, AppendIncident(incident("dup", now)))
	require.NoError(t, err)
	before := s.State()

	_, err = s.Dispatch(ctx, AppendIncident(incident("dup", now.Add(time.Second))))
	require.ErrorIs(t, err, model.ErrDuplicateIncidentID)
	assert.Equal(t, before, s.State())
}

func TestReplaceIncidentLog_RejectsDuplicates(t *testing.T) {
	s, _ := newStore(t, memory.New())
	now := time.Now().UTC()
	_, err := s.Dispatch(context.Background(), ReplaceIncidentLog([]model.Incident{incident("a", now), incident("a", now)}))
	require.ErrorIs(t, err, model.ErrDuplicateIncidentID)
	assert.Empty(t, s.State().Incidents)
}

func TestAppendIncident_DistinctIDsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t, memory.New())
	base := time.Now().UTC()
	ids := []string{"one", "two", "three", "four"}
	for i, id := range ids {
		_, err := s.Dispatch(ctx, AppendIncident(incident(id, base.Add(time.Duration(i)*time.Second))))
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"four", "three", "two", "one"}, s.State().IncidentIDs())
}

func TestDispatch_PersistFailureKeepsState(t *testing.T) {
	ctx := context.Background()
	b := memory.New(memory.WithQuota(1))
	s, kv := newStore(t, b)

	st, err := s.Dispatch(ctx, SetJurisdiction("TX"))
	require.NoError(t, err)
	require.NoError(t, s.Flush(ctx))

	assert.Equal(t, "TX", st.User.Jurisdiction)
	assert.Equal(t, "TX", s.State().User.Jurisdiction)
	var saved Snapshot
	assert.False(t, kv.Load(ctx, stateKey, &saved), "write should have been rejected by quota")
}

func TestState_ReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t, memory.New())
	_, err := s.Dispatch(ctx, AddTrustedContact("a"))
	require.NoError(t, err)

	st := s.State()
	st.User.TrustedContacts[0] = "mutated"
	assert.Equal(t, "a", s.State().User.TrustedContacts[0])
}

func TestTrustedContacts_DedupeAndRemove(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t, memory.New())
	for _, a := range []Action{AddTrustedContact("a"), AddTrustedContact("b"), AddTrustedContact("a"), RemoveTrustedContact("b"), RemoveTrustedContact("zzz")} {
		_, err := s.Dispatch(ctx, a)
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"a"}, s.State().User.TrustedContacts)

	_, err := s.Dispatch(ctx, AddTrustedContact(""))
	assert.True(t, model.IsValidationError(err))
}

func TestRecordLocation_ValidatesRange(t *testing.T) {
	s, _ := newStore(t, memory.New())
	_, err := s.Dispatch(context.Background(), RecordLocation(model.Location{Latitude: 91, Longitude: 0, Timestamp: time.Now()}))
	require.ErrorIs(t, err, model.ErrValidation)
	assert.Nil(t, s.State().CurrentLocation)
}

func TestReset_RestoresDefaults(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t, memory.New())
	_, _ = s.Dispatch(ctx, SetPremium(true))
	_, _ = s.Dispatch(ctx, SetSelectedLanguage("spanish"))
	_, err := s.Dispatch(ctx, Reset())
	require.NoError(t, err)
	assert.Equal(t, Default(), s.State())
}
