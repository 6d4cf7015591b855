package flow

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/vbtlab/trainpipe/internal/models"
	"github.com/vbtlab/trainpipe/internal/store"
)

const testCSV = `R,SERIE,KG,D,VM,VMP,RM,P(W),Perfil,Ejer.,Atleta,Ecuacion
1,S1 R1,100,0.50,0.45,0.47,120.5,350,P1,Press Banca,ana,E1
2,S1 R2,100,0.48,0.44,0.46,119.0,340,P1,Press Banca,ana,E1
`

type sentText struct {
	To   string
	Body string
}

type sentList struct {
	To   string
	List models.InteractiveList
}

// fakeSender records outbound messages. The engine serializes per user, so
// no locking is needed in tests.
type fakeSender struct {
	Texts    []sentText
	Lists    []sentList
	FailText bool
}

func (f *fakeSender) SendText(ctx context.Context, to string, body string) error {
	if f.FailText {
		return errors.New("send failed")
	}
	f.Texts = append(f.Texts, sentText{To: to, Body: body})
	return nil
}

func (f *fakeSender) SendList(ctx context.Context, to string, list models.InteractiveList) error {
	f.Lists = append(f.Lists, sentList{To: to, List: list})
	return nil
}

func (f *fakeSender) SendDocument(ctx context.Context, to string, mediaID, filename string) error {
	return nil
}

// fakeMedia serves canned media bytes by id.
type fakeMedia struct {
	Files map[string][]byte
}

func (f *fakeMedia) DownloadMedia(ctx context.Context, mediaID string) ([]byte, error) {
	data, ok := f.Files[mediaID]
	if !ok {
		return nil, fmt.Errorf("unknown media id %s", mediaID)
	}
	return data, nil
}

func newTestEngine(t *testing.T) (*Engine, store.Store, *fakeSender) {
	t.Helper()
	s, err := store.NewSQLiteStore(store.WithSQLiteDSN(filepath.Join(t.TempDir(), "flow.db")))
	if err != nil {
		t.Fatalf("failed to create SQLite store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	sender := &fakeSender{}
	media := &fakeMedia{Files: map[string][]byte{"media-1": []byte(testCSV)}}
	return NewEngine(s, sender, media), s, sender
}

func textEvent(from, body string) Event {
	return Event{From: from, ProfileName: "Ana", MessageID: "wamid.1", Kind: models.MessageTypeText, Text: body}
}

func listReplyEvent(from, id, title string) Event {
	return Event{From: from, Kind: models.MessageTypeInteractive, ListReply: &models.ListReply{ID: id, Title: title}}
}

func documentEvent(from, mediaID, filename string) Event {
	return Event{From: from, Kind: models.MessageTypeDocument, Document: &models.DocumentContent{MediaID: mediaID, Filename: filename, MimeType: "text/csv"}}
}

func userState(t *testing.T, s store.Store, phone string) models.StateType {
	t.Helper()
	u, err := s.GetUserByPhone(context.Background(), phone)
	if err != nil {
		t.Fatalf("failed to load user: %v", err)
	}
	if u == nil {
		t.Fatalf("user %s not found", phone)
	}
	return u.State
}

func advanceTo(t *testing.T, e *Engine, phone string, state models.StateType) {
	t.Helper()
	ctx := context.Background()
	if err := e.HandleEvent(ctx, textEvent(phone, "hola")); err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
	if state == models.StateIdle {
		return
	}
	if err := e.HandleEvent(ctx, listReplyEvent(phone, rowTrainingID, rowTrainingTitle)); err != nil {
		t.Fatalf("failed to enter training management: %v", err)
	}
	if state == models.StateTrainingManagement {
		return
	}
	if err := e.HandleEvent(ctx, listReplyEvent(phone, rowAddTrainingID, rowAddTrainingTitle)); err != nil {
		t.Fatalf("failed to enter add training: %v", err)
	}
}

func TestHandleEvent_NewUserStartsIdle(t *testing.T) {
	e, s, sender := newTestEngine(t)
	phone := "34600111222"

	if err := e.HandleEvent(context.Background(), textEvent(phone, "hola")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := userState(t, s, phone); got != models.StateIdle {
		t.Errorf("expected new user in Idle, got %q", got)
	}
	if len(sender.Texts) != 1 || sender.Texts[0].Body != msgChooseFromList {
		t.Errorf("expected choose-from-list prompt, got %+v", sender.Texts)
	}
	if len(sender.Lists) != 1 {
		t.Fatalf("expected main menu list, got %d lists", len(sender.Lists))
	}
	rows := sender.Lists[0].List.Sections[0].Rows
	if rows[0].ID != rowTrainingID {
		t.Errorf("expected main menu training row, got %+v", rows)
	}
}

func TestHandleEvent_IdleToTrainingManagement(t *testing.T) {
	e, s, sender := newTestEngine(t)
	phone := "34600111222"
	ctx := context.Background()

	if err := e.HandleEvent(ctx, textEvent(phone, "hola")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := e.HandleEvent(ctx, listReplyEvent(phone, rowTrainingID, rowTrainingTitle)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := userState(t, s, phone); got != models.StateTrainingManagement {
		t.Errorf("expected TrainingManagement, got %q", got)
	}
	last := sender.Lists[len(sender.Lists)-1]
	if last.List.Sections[0].Rows[0].ID != rowAddTrainingID {
		t.Errorf("expected training menu list, got %+v", last.List)
	}
}

func TestHandleEvent_IdleIgnoresUnknownReply(t *testing.T) {
	e, s, _ := newTestEngine(t)
	phone := "34600111222"
	ctx := context.Background()

	if err := e.HandleEvent(ctx, textEvent(phone, "hola")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := e.HandleEvent(ctx, listReplyEvent(phone, "bogus", "Bogus")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := userState(t, s, phone); got != models.StateIdle {
		t.Errorf("expected user to stay Idle, got %q", got)
	}
}

func TestHandleEvent_TrainingManagementMenu(t *testing.T) {
	e, s, sender := newTestEngine(t)
	phone := "34600111222"
	ctx := context.Background()
	advanceTo(t, e, phone, models.StateTrainingManagement)

	// Free text replays the menu.
	if err := e.HandleEvent(ctx, textEvent(phone, "que hago")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := userState(t, s, phone); got != models.StateTrainingManagement {
		t.Errorf("expected to stay in TrainingManagement, got %q", got)
	}
	if last := sender.Texts[len(sender.Texts)-1]; last.Body != msgChooseTraining {
		t.Errorf("expected training prompt, got %q", last.Body)
	}

	// A not-ready row gets the not-ready reply.
	if err := e.HandleEvent(ctx, listReplyEvent(phone, rowEstimateRMID, rowEstimateRMTitle)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if last := sender.Texts[len(sender.Texts)-1]; last.Body != msgOptionNotReady {
		t.Errorf("expected not-ready reply, got %q", last.Body)
	}
	if got := userState(t, s, phone); got != models.StateTrainingManagement {
		t.Errorf("expected to stay in TrainingManagement, got %q", got)
	}
}

func TestHandleEvent_EndKeywordCaseInsensitive(t *testing.T) {
	e, s, _ := newTestEngine(t)
	phone := "34600111222"
	advanceTo(t, e, phone, models.StateTrainingManagement)

	if err := e.HandleEvent(context.Background(), textEvent(phone, "FINITTO ya")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := userState(t, s, phone); got != models.StateIdle {
		t.Errorf("expected end keyword to return user to Idle, got %q", got)
	}
}

func TestHandleEvent_AddTrainingFlow(t *testing.T) {
	e, s, sender := newTestEngine(t)
	phone := "34600111222"
	ctx := context.Background()
	advanceTo(t, e, phone, models.StateAddTraining)

	if got := userState(t, s, phone); got != models.StateAddTraining {
		t.Fatalf("expected AddTraining, got %q", got)
	}
	if last := sender.Texts[len(sender.Texts)-1]; last.Body != msgSendCSVOrEnd {
		t.Errorf("expected csv instruction on entry, got %q", last.Body)
	}

	// Interactive replies are refused while recording.
	if err := e.HandleEvent(ctx, listReplyEvent(phone, rowTrainingID, rowTrainingTitle)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if last := sender.Texts[len(sender.Texts)-1]; last.Body != msgAlreadyRecording {
		t.Errorf("expected already-recording reply, got %q", last.Body)
	}

	// The end keyword closes the session.
	if err := e.HandleEvent(ctx, textEvent(phone, "finitto")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := userState(t, s, phone); got != models.StateIdle {
		t.Errorf("expected Idle after end keyword, got %q", got)
	}
}

func TestHandleEvent_DocumentImport(t *testing.T) {
	e, s, sender := newTestEngine(t)
	phone := "34600111222"
	ctx := context.Background()
	advanceTo(t, e, phone, models.StateAddTraining)

	if err := e.HandleEvent(ctx, documentEvent(phone, "media-1", "adr_export.csv")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if last := sender.Texts[len(sender.Texts)-1]; last.Body != msgSendMoreDocuments {
		t.Errorf("expected more-documents reply, got %q", last.Body)
	}

	u, err := s.GetUserByPhone(ctx, phone)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sess, err := s.LatestSessionSince(ctx, u.ID, u.CreatedAt)
	if err != nil || sess == nil {
		t.Fatalf("expected a training session, got %v (err %v)", sess, err)
	}
	hashes, err := s.SessionDetailHashes(ctx, u.ID, sess.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hashes) != 2 {
		t.Errorf("expected 2 imported details, got %d", len(hashes))
	}

	// Re-sending the same file inserts nothing new.
	if err := e.HandleEvent(ctx, documentEvent(phone, "media-1", "adr_export.csv")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	hashes, err = s.SessionDetailHashes(ctx, u.ID, sess.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hashes) != 2 {
		t.Errorf("expected re-import to be a no-op, got %d details", len(hashes))
	}
}

func TestHandleEvent_NonADRDocumentRejected(t *testing.T) {
	e, s, sender := newTestEngine(t)
	phone := "34600111222"
	ctx := context.Background()
	advanceTo(t, e, phone, models.StateAddTraining)

	if err := e.HandleEvent(ctx, documentEvent(phone, "media-1", "holiday_photos.csv")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if last := sender.Texts[len(sender.Texts)-1]; last.Body != msgNotADRDocument {
		t.Errorf("expected not-ADR reply, got %q", last.Body)
	}
	if got := userState(t, s, phone); got != models.StateAddTraining {
		t.Errorf("expected to stay in AddTraining, got %q", got)
	}
}

func TestHandleEvent_ImportFailureForcesIdle(t *testing.T) {
	e, s, sender := newTestEngine(t)
	phone := "34600111222"
	ctx := context.Background()
	advanceTo(t, e, phone, models.StateAddTraining)

	// Unknown media id makes the download fail inside the handler.
	if err := e.HandleEvent(ctx, documentEvent(phone, "missing-media", "adr_export.csv")); err != nil {
		t.Fatalf("expected error policy to absorb the failure, got %v", err)
	}
	if last := sender.Texts[len(sender.Texts)-1]; last.Body != msgAddError {
		t.Errorf("expected add-training error reply, got %q", last.Body)
	}
	if got := userState(t, s, phone); got != models.StateIdle {
		t.Errorf("expected forced return to Idle, got %q", got)
	}
}

func TestHandleEvent_IdleSwallowsHandlerError(t *testing.T) {
	e, s, sender := newTestEngine(t)
	phone := "34600111222"
	ctx := context.Background()

	if err := e.HandleEvent(ctx, textEvent(phone, "hola")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sender.FailText = true
	if err := e.HandleEvent(ctx, textEvent(phone, "hola otra vez")); err != nil {
		t.Fatalf("expected idle errors to be swallowed, got %v", err)
	}
	sender.FailText = false

	if got := userState(t, s, phone); got != models.StateIdle {
		t.Errorf("expected user to stay Idle after handler error, got %q", got)
	}
}

func TestHandleEvent_UnknownStateIsFatal(t *testing.T) {
	e, s, _ := newTestEngine(t)
	phone := "34600111222"
	ctx := context.Background()
	advanceTo(t, e, phone, models.StateIdle)

	u, err := s.GetUserByPhone(ctx, phone)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.UpdateUserState(ctx, u.ID, models.StateEstimateOneRM); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err = e.HandleEvent(ctx, textEvent(phone, "hola"))
	var use *UnknownStateError
	if !errors.As(err, &use) {
		t.Fatalf("expected UnknownStateError, got %v", err)
	}
	if use.State != models.StateEstimateOneRM {
		t.Errorf("unexpected state in error: %q", use.State)
	}
}

func TestNextState_Table(t *testing.T) {
	cases := []struct {
		from   models.StateType
		signal models.TransitionSignal
		want   models.StateType
	}{
		{models.StateIdle, models.SignalTrainingSelected, models.StateTrainingManagement},
		{models.StateIdle, models.SignalEnd, models.StateIdle},
		{models.StateIdle, models.SignalAddTraining, models.StateIdle},
		{models.StateTrainingManagement, models.SignalAddTraining, models.StateAddTraining},
		{models.StateTrainingManagement, models.SignalEnd, models.StateIdle},
		{models.StateTrainingManagement, models.SignalTrainingSelected, models.StateTrainingManagement},
		{models.StateAddTraining, models.SignalEnd, models.StateIdle},
		{models.StateAddTraining, models.SignalTrainingSelected, models.StateAddTraining},
		{models.StateAddTraining, models.SignalNone, models.StateAddTraining},
	}
	for _, tc := range cases {
		if got := nextState(tc.from, tc.signal); got != tc.want {
			t.Errorf("nextState(%q, %s) = %q, want %q", tc.from, tc.signal, got, tc.want)
		}
	}
}
