package roster

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/observerhq/observer/internal/api"
	"github.com/observerhq/observer/pkg/types"
)

func snapshot(ids ...int64) api.DashboardSnapshot {
	snap := api.DashboardSnapshot{
		Session: types.Session{Code: "ABC123", Name: "Intro"},
	}
	for _, id := range ids {
		snap.Students = append(snap.Students, types.Participant{
			ID:          id,
			Username:    "student" + string(rune('a'+id)),
			IsConnected: true,
			Language:    types.LangPython,
		})
	}
	return snap
}

func ids(views []View) []int64 {
	out := make([]int64, 0, len(views))
	for _, v := range views {
		out = append(out, v.ID)
	}
	return out
}

func TestSnapshotOrderStableAcrossArrivalOrder(t *testing.T) {
	t.Parallel()

	a := NewReconciler()
	a.ApplySnapshot(snapshot(3, 1, 2))
	b := NewReconciler()
	b.ApplySnapshot(snapshot(2, 3, 1))

	require.Equal(t, []int64{1, 2, 3}, ids(a.Students()))
	require.Equal(t, ids(a.Students()), ids(b.Students()))
	require.Equal(t, "ABC123", a.Session().Code)
}

func TestSnapshotReplacesCollection(t *testing.T) {
	t.Parallel()

	r := NewReconciler()
	r.ApplySnapshot(snapshot(1, 2, 3))
	r.ApplyCodeUpdate(2, "work in progress", "")

	// The next poll is authoritative: student 3 left, student 4 joined.
	r.ApplySnapshot(snapshot(1, 2, 4))
	require.Equal(t, []int64{1, 2, 4}, ids(r.Students()))
}

func TestApplyCodeUpdate(t *testing.T) {
	t.Parallel()

	r := NewReconciler()
	r.ApplySnapshot(snapshot(1))

	r.ApplyCodeUpdate(1, "print(42)", types.LangJavaScript)
	views := r.Students()
	require.Equal(t, "print(42)", views[0].CodeContent)
	require.Equal(t, types.LangJavaScript, views[0].Language)

	// Empty language keeps the previous one.
	r.ApplyCodeUpdate(1, "print(43)", "")
	require.Equal(t, types.LangJavaScript, r.Students()[0].Language)

	// Unknown ids are dropped, not created.
	r.ApplyCodeUpdate(99, "ghost", "")
	require.Len(t, r.Students(), 1)
}

func TestApplyOutputRingAndErrors(t *testing.T) {
	t.Parallel()

	r := NewReconciler()
	r.ApplySnapshot(snapshot(1))

	for i := 0; i < maxRecentLogs+3; i++ {
		r.ApplyOutput(1, true, "ok", "2025-03-10T09:00:00Z", "studentb", "Student B")
	}
	s := r.Students()[0]
	require.Len(t, s.RecentLogs, maxRecentLogs)
	require.False(t, s.HasErrors)
	require.Zero(t, r.UnreadErrorCount())

	r.ApplyOutput(1, false, "NameError: x", "2025-03-10T09:01:00Z", "studentb", "Student B")
	s = r.Students()[0]
	require.True(t, s.HasErrors)
	require.Equal(t, "error", s.RecentLogs[0].LogType)
	require.Equal(t, "NameError: x", s.RecentLogs[0].Message)

	notices := r.Notices()
	require.Len(t, notices, 1)
	require.NotEmpty(t, notices[0].ID)
	require.Equal(t, "NameError: x", notices[0].ErrorMessage)
	require.Equal(t, 1, r.UnreadErrorCount())
}

func TestConnectUpsertsInOrder(t *testing.T) {
	t.Parallel()

	r := NewReconciler()
	r.ApplySnapshot(snapshot(1, 3))
	r.ApplyDisconnect(3)

	// Known student: reconnect flips the flag only.
	r.ApplyConnect(3, "", "")
	require.True(t, r.Students()[1].IsConnected)
	require.Len(t, r.Students(), 2)

	// New student: inserted between 1 and 3.
	r.ApplyConnect(2, "studentc", "Student C")
	require.Equal(t, []int64{1, 2, 3}, ids(r.Students()))
	require.True(t, r.Students()[1].IsConnected)
	require.Equal(t, "studentc", r.Students()[1].Username)

	r.ApplyDisconnect(2)
	require.False(t, r.Students()[1].IsConnected)
	require.Equal(t, 2, r.OnlineCount())
}

func TestApplyActivityAlertLifecycle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		activity types.ActivityType
		want     string
	}{
		{name: "tabHidden", activity: types.ActivityTabHidden, want: "Tab Hidden"},
		{name: "windowBlur", activity: types.ActivityWindowBlur, want: "Window Blur"},
		{name: "splitScreen", activity: types.ActivitySplitScreen, want: "Split Screen"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := NewReconciler()
			r.ApplySnapshot(snapshot(1))

			r.ApplyActivity(1, tt.activity, "2025-03-10T09:00:00Z")
			require.Equal(t, tt.want, r.Students()[0].ActivityAlert)

			r.ApplyActivity(1, types.ActivityTabVisible, "2025-03-10T09:01:00Z")
			require.Empty(t, r.Students()[0].ActivityAlert)
			require.Equal(t, "2025-03-10T09:01:00Z", r.Students()[0].LastActive)
		})
	}
}

func TestEditShieldsDisplayedCode(t *testing.T) {
	t.Parallel()

	r := NewReconciler()
	r.ApplySnapshot(snapshot(1))
	r.ApplyCodeUpdate(1, "student v1", "")

	require.True(t, r.BeginEdit(1))
	require.True(t, r.Editing(1))
	r.UpdateEdit(1, "teacher draft")

	// Live updates keep flowing into the backing record but the view
	// shows the edit buffer.
	r.ApplyCodeUpdate(1, "student v2", "")
	v := r.Students()[0]
	require.True(t, v.Editing)
	require.Equal(t, "teacher draft", v.DisplayCode)
	require.Equal(t, "student v2", v.CodeContent)

	text, ok := r.EndEdit(1)
	require.True(t, ok)
	require.Equal(t, "teacher draft", text)
	require.False(t, r.Editing(1))
	require.Equal(t, "student v2", r.Students()[0].DisplayCode)
}

func TestBeginEditUnknownStudent(t *testing.T) {
	t.Parallel()

	r := NewReconciler()
	require.False(t, r.BeginEdit(7))
	_, ok := r.EndEdit(7)
	require.False(t, ok)
}

func TestFilterAndSearch(t *testing.T) {
	t.Parallel()

	r := NewReconciler()
	r.ApplySnapshot(api.DashboardSnapshot{Students: []types.Participant{
		{ID: 1, Username: "ada", FullName: "Ada Lovelace", IsConnected: true},
		{ID: 2, Username: "grace", FullName: "Grace Hopper", IsConnected: false, HasErrors: true},
		{ID: 3, Username: "linus", FullName: "Linus T", IsConnected: true},
	}})

	tests := []struct {
		name   string
		filter string
		search string
		want   []int64
	}{
		{name: "all", filter: "all", want: []int64{1, 2, 3}},
		{name: "emptyFilter", filter: "", want: []int64{1, 2, 3}},
		{name: "online", filter: "online", want: []int64{1, 3}},
		{name: "offline", filter: "offline", want: []int64{2}},
		{name: "errors", filter: "errors", want: []int64{2}},
		{name: "searchUsername", filter: "all", search: "gra", want: []int64{2}},
		{name: "searchFullNameCaseInsensitive", filter: "all", search: "LOVELACE", want: []int64{1}},
		{name: "searchPlusFilter", filter: "online", search: "a", want: []int64{1}},
		{name: "unknownFilterShowsAll", filter: "bogus", want: []int64{1, 2, 3}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, ids(r.Filter(tt.filter, tt.search)))
		})
	}
}
