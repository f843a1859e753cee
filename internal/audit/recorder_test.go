package audit

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozaktomas/face-registry/internal/constants"
	"github.com/kozaktomas/face-registry/internal/database/mock"
	"github.com/kozaktomas/face-registry/internal/metrics"
)

func TestRecorder_RecordWritesInBackground(t *testing.T) {
	store := mock.NewMockAuditStore()
	log, _ := logtest.NewNullLogger()
	r := NewRecorder(store, log, nil)

	ctx, cancel := context.WithCancel(context.Background())
	r.Record(ctx, Entry{
		Method:    "POST",
		Endpoint:  "/compararCara",
		Status:    401,
		IP:        "10.0.0.1",
		UserAgent: "curl/8.0",
	})
	cancel() // a cancelled request must not lose its record
	r.Close()

	records := store.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "Intento de acceso via rostro", records[0].Action)
	assert.Equal(t, "POST", records[0].Method)
	assert.Equal(t, 401, records[0].Status)
	assert.Equal(t, "10.0.0.1", records[0].IP)
	assert.False(t, records[0].Timestamp.IsZero())
}

func TestRecorder_FailureIsLoggedAndCounted(t *testing.T) {
	store := mock.NewMockAuditStore()
	store.AppendError = errors.New("db down")
	log, hook := logtest.NewNullLogger()
	m := metrics.New()
	r := NewRecorder(store, log, m)

	r.Record(context.Background(), Entry{Method: "GET", Endpoint: "/historial"})
	r.Close()

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Collectors()[4]))
}

func TestRecorder_RecordAfterClose(t *testing.T) {
	store := mock.NewMockAuditStore()
	log, hook := logtest.NewNullLogger()
	r := NewRecorder(store, log, nil)
	r.Close()

	r.Record(context.Background(), Entry{Method: "GET", Endpoint: "/health"})
	assert.Empty(t, store.Records())
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestRecorder_List(t *testing.T) {
	store := mock.NewMockAuditStore()
	log, _ := logtest.NewNullLogger()
	r := NewRecorder(store, log, nil)

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		r.Record(context.Background(), Entry{Method: "GET", Endpoint: "/usuarios", Timestamp: base.Add(time.Duration(i) * time.Minute)})
		// keep insertion order deterministic
		r.wg.Wait()
	}
	r.Close()

	recent, err := r.List(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, base.Add(2*time.Minute), recent[0].Timestamp)
	assert.Equal(t, base.Add(time.Minute), recent[1].Timestamp)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, constants.DefaultHistoryLimit, ClampLimit(0))
	assert.Equal(t, constants.DefaultHistoryLimit, ClampLimit(-5))
	assert.Equal(t, 10, ClampLimit(10))
	assert.Equal(t, constants.MaxHistoryLimit, ClampLimit(constants.MaxHistoryLimit+1))
}

func TestToRecord_Truncates(t *testing.T) {
	long := "/" + strings.Repeat("ñ", 400)
	rec := toRecord(Entry{Method: "GET", Endpoint: long, UserAgent: strings.Repeat("a", 300)})
	assert.Equal(t, maxEndpointLen, len([]rune(rec.Endpoint)))
	assert.Equal(t, maxUserAgentLen, len(rec.UserAgent))
	assert.Equal(t, maxActionLen, len([]rune(rec.Action)))
}
