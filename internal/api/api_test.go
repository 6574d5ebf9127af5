package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kalambet/staffdesk/internal/portal"
	"github.com/kalambet/staffdesk/internal/storage"
	"github.com/kalambet/staffdesk/internal/survey"
)

const testToken = "test-token-12345"

type testApp struct {
	handler http.Handler
	deps    Deps
	store   *storage.Store
}

func setupApp(t *testing.T) testApp {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	p, err := portal.New(store, portal.Options{SkipSeed: true})
	if err != nil {
		t.Fatalf("portal.New: %v", err)
	}
	sv, err := survey.New(store, survey.Options{Bus: p.Bus(), Notifier: p})
	if err != nil {
		t.Fatalf("survey.New: %v", err)
	}

	deps := Deps{Portal: p, Surveys: sv, Documents: store, Token: testToken}
	return testApp{handler: NewHandler(deps), deps: deps, store: store}
}

func authReq(method, url, body, token string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func (a testApp) do(t *testing.T, method, url, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, authReq(method, url, body, testToken))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
	return v
}

func errorType(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	return body.Error.Type
}

const vacationBody = `{"employeeId":"emp1","employeeName":"John Employee","type":"paid","startDate":"2024-06-01","endDate":"2024-06-05","days":5,"reason":"Family vacation"}`

func TestHealth_NoAuth(t *testing.T) {
	app := setupApp(t)
	rec := httptest.NewRecorder()
	app.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestAuth(t *testing.T) {
	app := setupApp(t)

	tests := []struct {
		name string
		req  *http.Request
		want int
	}{
		{"missing", authReq(http.MethodGet, "/stats", "", ""), http.StatusUnauthorized},
		{"wrong", authReq(http.MethodGet, "/stats", "", "nope"), http.StatusUnauthorized},
		{"valid header", authReq(http.MethodGet, "/stats", "", testToken), http.StatusOK},
		{"query param", httptest.NewRequest(http.MethodGet, "/stats?access_token="+testToken, nil), http.StatusOK},
	}
	basic := httptest.NewRequest(http.MethodGet, "/stats?access_token="+testToken, nil)
	basic.Header.Set("Authorization", "Basic abc")
	tests = append(tests, struct {
		name string
		req  *http.Request
		want int
	}{"non-bearer header wins over query", basic, http.StatusUnauthorized})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			app.handler.ServeHTTP(rec, tt.req)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			if tt.want == http.StatusUnauthorized && errorType(t, rec) != "authentication_error" {
				t.Error("expected authentication_error")
			}
		})
	}
}

func TestVacation_CreateNotifiesHR(t *testing.T) {
	app := setupApp(t)

	rec := app.do(t, http.MethodPost, "/vacation-requests", vacationBody)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201; body: %s", rec.Code, rec.Body.String())
	}
	created := decode[portal.VacationRequest](t, rec)
	if created.ID == "" || created.Status != portal.StatusPending {
		t.Fatalf("created = %+v, want pending with id", created)
	}

	rec = app.do(t, http.MethodGet, "/notifications?role=hr", "")
	notifs := decode[[]portal.Notification](t, rec)
	if len(notifs) != 1 || notifs[0].Type != portal.TypeVacationRequest {
		t.Fatalf("hr notifications = %+v, want one vacation_request", notifs)
	}
	payload, ok := notifs[0].Data.(portal.VacationRequestPayload)
	if !ok {
		t.Fatalf("Data = %T, want VacationRequestPayload", notifs[0].Data)
	}
	if payload.RequestID != created.ID {
		t.Errorf("payload.RequestID = %q, want %q", payload.RequestID, created.ID)
	}

	rec = app.do(t, http.MethodGet, "/vacation-requests/"+created.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET by id status = %d", rec.Code)
	}
}

func TestVacation_Validation(t *testing.T) {
	app := setupApp(t)

	tests := []struct {
		name string
		body string
	}{
		{"bad json", `{`},
		{"bad type", strings.Replace(vacationBody, `"paid"`, `"holiday"`, 1)},
		{"end before start", strings.Replace(vacationBody, `"2024-06-05"`, `"2024-05-01"`, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := app.do(t, http.MethodPost, "/vacation-requests", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if got := errorType(t, rec); got != "invalid_request_error" {
				t.Errorf("type = %q, want invalid_request_error", got)
			}
		})
	}
}

func TestVacation_ApproveFlow(t *testing.T) {
	app := setupApp(t)
	created := decode[portal.VacationRequest](t, app.do(t, http.MethodPost, "/vacation-requests", vacationBody))

	rec := app.do(t, http.MethodPost, "/vacation-requests/"+created.ID+"/approve", `{"comments":"enjoy"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing approver: status = %d, want 400", rec.Code)
	}

	rec = app.do(t, http.MethodPost, "/vacation-requests/"+created.ID+"/approve", `{"approvedBy":"hr1","comments":"enjoy"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("approve status = %d; body: %s", rec.Code, rec.Body.String())
	}
	approved := decode[portal.VacationRequest](t, rec)
	if approved.Status != portal.StatusApproved || approved.ApprovedBy != "hr1" || approved.ApprovedDate == nil {
		t.Errorf("approved = %+v", approved)
	}

	rec = app.do(t, http.MethodGet, "/notifications?role=employee&userId=emp1", "")
	notifs := decode[[]portal.Notification](t, rec)
	if len(notifs) != 1 || notifs[0].Type != portal.TypeVacationStatusUpdate {
		t.Fatalf("employee notifications = %+v, want one status update", notifs)
	}

	rec = app.do(t, http.MethodPost, "/vacation-requests/"+created.ID+"/reject", `{"approvedBy":"hr2"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("re-deciding: status = %d, want 409", rec.Code)
	}
	if got := errorType(t, rec); got != "conflict" {
		t.Errorf("type = %q, want conflict", got)
	}
}

func TestVacation_NotFound(t *testing.T) {
	app := setupApp(t)
	for _, tc := range []struct{ method, url, body string }{
		{http.MethodGet, "/vacation-requests/missing", ""},
		{http.MethodPatch, "/vacation-requests/missing", `{"reason":"x"}`},
		{http.MethodPost, "/vacation-requests/missing/approve", `{"approvedBy":"hr1"}`},
		{http.MethodGet, "/vacation-requests/missing/documents", ""},
		{http.MethodGet, "/surveys/missing", ""},
		{http.MethodGet, "/surveys/missing/stats", ""},
	} {
		rec := app.do(t, tc.method, tc.url, tc.body)
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s %s: status = %d, want 404", tc.method, tc.url, rec.Code)
			continue
		}
		if got := errorType(t, rec); got != "not_found" {
			t.Errorf("%s %s: type = %q, want not_found", tc.method, tc.url, got)
		}
	}
}

func TestVacation_ListFilterAndPaging(t *testing.T) {
	app := setupApp(t)
	for _, emp := range []string{"emp1", "emp2", "emp1"} {
		body := strings.Replace(vacationBody, `"emp1"`, `"`+emp+`"`, 1)
		if rec := app.do(t, http.MethodPost, "/vacation-requests", body); rec.Code != http.StatusCreated {
			t.Fatalf("create: %d", rec.Code)
		}
	}

	list := decode[[]portal.VacationRequest](t, app.do(t, http.MethodGet, "/vacation-requests?employeeId=emp1", ""))
	if len(list) != 2 {
		t.Errorf("emp1 requests = %d, want 2", len(list))
	}
	list = decode[[]portal.VacationRequest](t, app.do(t, http.MethodGet, "/vacation-requests?limit=1&offset=1", ""))
	if len(list) != 1 {
		t.Errorf("paged requests = %d, want 1", len(list))
	}
	rec := app.do(t, http.MethodGet, "/vacation-requests?status=approved", "")
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("empty list body = %q, want []", rec.Body.String())
	}
}

func TestObjective_ProgressNotifiesManager(t *testing.T) {
	app := setupApp(t)
	rec := app.do(t, http.MethodPost, "/objectives",
		`{"title":"Ship Q3 roadmap","employeeId":"emp1","employeeName":"John Employee","managerId":"mgr1","progress":10,"dueDate":"2024-09-30"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d; body: %s", rec.Code, rec.Body.String())
	}
	obj := decode[portal.Objective](t, rec)

	rec = app.do(t, http.MethodPatch, "/objectives/"+obj.ID, `{"progress":150}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("progress 150: status = %d, want 400", rec.Code)
	}

	rec = app.do(t, http.MethodPatch, "/objectives/"+obj.ID, `{"progress":60}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("patch status = %d", rec.Code)
	}
	if got := decode[portal.Objective](t, rec); got.Progress != 60 {
		t.Errorf("Progress = %d, want 60", got.Progress)
	}

	notifs := decode[[]portal.Notification](t, app.do(t, http.MethodGet, "/notifications?role=manager&userId=mgr1", ""))
	if len(notifs) != 1 || notifs[0].Type != portal.TypeObjectiveProgressUpdate {
		t.Fatalf("manager notifications = %+v", notifs)
	}

	list := decode[[]portal.Objective](t, app.do(t, http.MethodGet, "/objectives?managerId=mgr1", ""))
	if len(list) != 1 {
		t.Errorf("objectives for mgr1 = %d, want 1", len(list))
	}
}

func TestNotifications_ReadAndReadAll(t *testing.T) {
	app := setupApp(t)
	for i := 0; i < 3; i++ {
		rec := app.do(t, http.MethodPost, "/notifications", `{"type":"announcement","title":"Office closed","message":"Friday","targetRole":"all"}`)
		if rec.Code != http.StatusCreated {
			t.Fatalf("create status = %d; body: %s", rec.Code, rec.Body.String())
		}
	}
	rec := app.do(t, http.MethodPost, "/notifications", `{"type":"announcement","title":"","targetRole":"all"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing title: status = %d, want 400", rec.Code)
	}

	notifs := decode[[]portal.Notification](t, app.do(t, http.MethodGet, "/notifications?unread=true", ""))
	if len(notifs) != 3 {
		t.Fatalf("unread = %d, want 3", len(notifs))
	}

	if rec := app.do(t, http.MethodPost, "/notifications/"+notifs[0].ID+"/read", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("read status = %d, want 204", rec.Code)
	}
	if rec := app.do(t, http.MethodPost, "/notifications/unknown/read", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("unknown id read status = %d, want 204", rec.Code)
	}

	rec = app.do(t, http.MethodPost, "/notifications/read-all?role=employee", "")
	if got := decode[map[string]int](t, rec); got["updated"] != 2 {
		t.Errorf("updated = %d, want 2", got["updated"])
	}
	if stats := decode[statsResponse](t, app.do(t, http.MethodGet, "/stats", "")); stats.UnreadNotifications != 0 {
		t.Errorf("UnreadNotifications = %d, want 0", stats.UnreadNotifications)
	}
}

const surveyBody = `{"title":"Engagement","createdBy":"hr1","status":"active","anonymous":true,
"questions":[{"type":"rating","text":"How happy are you?","required":true},{"type":"yes_no","text":"Would you recommend us?"}]}`

func TestSurvey_RespondAndStats(t *testing.T) {
	app := setupApp(t)

	rec := app.do(t, http.MethodPost, "/surveys", surveyBody)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d; body: %s", rec.Code, rec.Body.String())
	}
	sv := decode[survey.Survey](t, rec)
	if len(sv.Questions) != 2 || sv.Questions[0].ID == "" {
		t.Fatalf("questions = %+v, want ids assigned", sv.Questions)
	}
	q1, q2 := sv.Questions[0].ID, sv.Questions[1].ID

	for _, body := range []string{
		`{"answers":{"` + q1 + `":4,"` + q2 + `":true}}`,
		`{"answers":{"` + q1 + `":2,"` + q2 + `":"no"}}`,
	} {
		if rec := app.do(t, http.MethodPost, "/surveys/"+sv.ID+"/responses", body); rec.Code != http.StatusCreated {
			t.Fatalf("respond status = %d; body: %s", rec.Code, rec.Body.String())
		}
	}
	rec = app.do(t, http.MethodPost, "/surveys/"+sv.ID+"/responses", `{"answers":{"`+q1+`":9}}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("out-of-range rating: status = %d, want 400", rec.Code)
	}

	stats := decode[survey.Stats](t, app.do(t, http.MethodGet, "/surveys/"+sv.ID+"/stats", ""))
	if stats.TotalResponses != 2 || stats.Headcount != survey.DefaultHeadcount {
		t.Fatalf("stats = %+v", stats)
	}
	if stats.Questions[0].Average != 3 {
		t.Errorf("average = %v, want 3", stats.Questions[0].Average)
	}
	if stats.Questions[1].Yes != 1 || stats.Questions[1].No != 1 {
		t.Errorf("yes/no = %d/%d, want 1/1", stats.Questions[1].Yes, stats.Questions[1].No)
	}

	responses := decode[[]survey.Response](t, app.do(t, http.MethodGet, "/surveys/"+sv.ID+"/responses", ""))
	if len(responses) != 2 {
		t.Errorf("responses = %d, want 2", len(responses))
	}

	announcements := decode[[]portal.Notification](t, app.do(t, http.MethodGet, "/notifications?role=employee", ""))
	if len(announcements) != 1 || announcements[0].Type != survey.TypeSurvey {
		t.Errorf("announcements = %+v, want one survey notification", announcements)
	}

	rec = app.do(t, http.MethodPatch, "/surveys/"+sv.ID, `{"status":"closed"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("close status = %d", rec.Code)
	}
	rec = app.do(t, http.MethodPost, "/surveys/"+sv.ID+"/responses", `{"answers":{"`+q1+`":5}}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("respond to closed: status = %d, want 409", rec.Code)
	}
	rec = app.do(t, http.MethodPatch, "/surveys/"+sv.ID, `{"status":"active"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("reopen: status = %d, want 409", rec.Code)
	}

	if list := decode[[]survey.Survey](t, app.do(t, http.MethodGet, "/surveys?status=closed", "")); len(list) != 1 {
		t.Errorf("closed surveys = %d, want 1", len(list))
	}
}

func TestExportAndClear(t *testing.T) {
	app := setupApp(t)
	app.do(t, http.MethodPost, "/vacation-requests", vacationBody)
	app.do(t, http.MethodPost, "/surveys", surveyBody)

	export := decode[Export](t, app.do(t, http.MethodGet, "/data", ""))
	if len(export.VacationRequests) != 1 || len(export.Surveys) != 1 {
		t.Fatalf("export = %d requests, %d surveys", len(export.VacationRequests), len(export.Surveys))
	}
	// HR notification plus the survey announcement.
	if len(export.Notifications) != 2 {
		t.Errorf("exported notifications = %d, want 2", len(export.Notifications))
	}

	if rec := app.do(t, http.MethodDelete, "/data", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("clear status = %d, want 204", rec.Code)
	}

	stats := decode[statsResponse](t, app.do(t, http.MethodGet, "/stats", ""))
	if stats.TotalVacationRequests != 0 || stats.TotalSurveys != 0 || stats.UnreadNotifications != 0 {
		t.Errorf("stats after clear = %+v", stats)
	}
	rec := app.do(t, http.MethodGet, "/data", "")
	if !strings.Contains(rec.Body.String(), `"vacationRequests":[]`) {
		t.Errorf("empty export should use [] not null: %s", rec.Body.String())
	}
}
