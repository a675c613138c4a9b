package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dmaksimov/skydrive/internal/common"
	"github.com/dmaksimov/skydrive/internal/server/models"
	"github.com/dmaksimov/skydrive/internal/server/services"
)

func newRequestWithHeader(method, target, header, value string) *http.Request {
	r := httptest.NewRequest(method, target, nil)
	r.Header.Set(header, value)
	return r
}

func doRaw(s *Server, r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.ServeHTTP(w, r)
	return w
}

func testShare() *models.ShareLink {
	return &models.ShareLink{
		ID:          "33333333-3333-3333-3333-333333333333",
		NodeID:      "22222222-2222-2222-2222-222222222222",
		Token:       "tok-1",
		Permissions: models.SharePermissions{CanView: true},
		AccessLevel: models.AccessLevelUnlisted,
		CreatedBy:   "u1",
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
}

func TestCreateShare_ReturnsShareURL(t *testing.T) {
	shares := &fakeShares{createResp: testShare()}
	s := newTestServer(&fakeNodes{}, shares)

	w := doRequest(t, s, http.MethodPost, "/api/shares", bearerToken(t, "u1"),
		`{"nodeId":"22222222-2222-2222-2222-222222222222","permissions":{"canEdit":true}}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("want 201, got %d: %s", w.Code, w.Body.String())
	}

	body := decodeBody(t, w)
	if body["shareUrl"] != "https://drive.example.com/shared/tok-1" {
		t.Fatalf("unexpected shareUrl: %v", body)
	}
	share := body["share"].(map[string]any)
	if share["token"] != "tok-1" {
		t.Fatalf("unexpected share: %v", share)
	}
}

func TestUpdateShare_NullClearsExpiryAndPassword(t *testing.T) {
	shares := &fakeShares{updateResp: testShare()}
	s := newTestServer(&fakeNodes{}, shares)

	w := doRequest(t, s, http.MethodPut, "/api/shares/abc", bearerToken(t, "u1"),
		`{"expiresAt":null,"password":null}`)
	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d: %s", w.Code, w.Body.String())
	}

	if !shares.lastUpdate.ClearExpiry || !shares.lastUpdate.ClearPassword {
		t.Fatalf("null values not mapped to clears: %+v", shares.lastUpdate)
	}
	if shares.lastUpdate.ExpiresAt != nil || shares.lastUpdate.Password != nil {
		t.Fatalf("clears must not also set values: %+v", shares.lastUpdate)
	}
}

func TestUpdateShare_AbsentFieldsLeftUntouched(t *testing.T) {
	shares := &fakeShares{updateResp: testShare()}
	s := newTestServer(&fakeNodes{}, shares)

	w := doRequest(t, s, http.MethodPut, "/api/shares/abc", bearerToken(t, "u1"),
		`{"accessLevel":"public"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", w.Code)
	}

	in := shares.lastUpdate
	if in.ClearExpiry || in.ClearPassword || in.ExpiresAt != nil || in.Password != nil || in.Permissions != nil {
		t.Fatalf("absent fields touched: %+v", in)
	}
	if in.AccessLevel == nil || *in.AccessLevel != models.AccessLevelPublic {
		t.Fatalf("accessLevel not mapped: %+v", in)
	}
}

func TestUpdateShare_SetsExpiryAndPassword(t *testing.T) {
	shares := &fakeShares{updateResp: testShare()}
	s := newTestServer(&fakeNodes{}, shares)

	w := doRequest(t, s, http.MethodPut, "/api/shares/abc", bearerToken(t, "u1"),
		`{"expiresAt":"2026-12-31T00:00:00Z","password":"pw"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d: %s", w.Code, w.Body.String())
	}

	in := shares.lastUpdate
	if in.ExpiresAt == nil || in.ExpiresAt.Year() != 2026 {
		t.Fatalf("expiresAt not mapped: %+v", in)
	}
	if in.Password == nil || *in.Password != "pw" {
		t.Fatalf("password not mapped: %+v", in)
	}
}

func TestDeleteShare_NotFound(t *testing.T) {
	shares := &fakeShares{deleteErr: common.ErrorNotFound}
	s := newTestServer(&fakeNodes{}, shares)

	w := doRequest(t, s, http.MethodDelete, "/api/shares/abc", bearerToken(t, "u1"), "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("want 404, got %d", w.Code)
	}
}

func TestSharedMeta_NoAuthRequired(t *testing.T) {
	node := testNode()
	share := testShare()
	shares := &fakeShares{validateResp: &services.ShareAccess{Share: share, Node: node}}
	s := newTestServer(&fakeNodes{}, shares)

	w := doRequest(t, s, http.MethodGet, "/shared/tok-1", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d: %s", w.Code, w.Body.String())
	}
	if shares.lastToken != "tok-1" {
		t.Fatalf("token not propagated: %q", shares.lastToken)
	}

	body := decodeBody(t, w)
	if body["name"] != "a.txt" || body["hasPassword"] != false {
		t.Fatalf("unexpected meta: %v", body)
	}
}

func TestShared_PasswordRequiredResponse(t *testing.T) {
	shares := &fakeShares{validateErr: common.ErrorPasswordRequired}
	s := newTestServer(&fakeNodes{}, shares)

	w := doRequest(t, s, http.MethodGet, "/shared/tok-1", "", "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("want 401, got %d", w.Code)
	}

	body := decodeBody(t, w)
	if body["requiresPassword"] != true {
		t.Fatalf("requiresPassword flag missing: %v", body)
	}
}

func TestShared_PasswordFromQueryAndHeader(t *testing.T) {
	node := testNode()
	shares := &fakeShares{validateResp: &services.ShareAccess{Share: testShare(), Node: node}}
	s := newTestServer(&fakeNodes{}, shares)

	doRequest(t, s, http.MethodGet, "/shared/tok-1?password=pw1", "", "")
	if shares.lastPassword != "pw1" {
		t.Fatalf("query password not used: %q", shares.lastPassword)
	}

	r := newRequestWithHeader(http.MethodGet, "/shared/tok-1", "X-Share-Password", "pw2")
	w := doRaw(s, r)
	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", w.Code)
	}
	if shares.lastPassword != "pw2" {
		t.Fatalf("header password not used: %q", shares.lastPassword)
	}
}

func TestSharedDownload_ForbiddenMapsTo403(t *testing.T) {
	shares := &fakeShares{
		validateResp: &services.ShareAccess{Share: testShare(), Node: testNode()},
		downloadErr:  common.ErrorForbidden,
	}
	s := newTestServer(&fakeNodes{}, shares)

	w := doRequest(t, s, http.MethodGet, "/shared/tok-1/download", "", "")
	if w.Code != http.StatusForbidden {
		t.Fatalf("want 403, got %d", w.Code)
	}
}

func TestSharedUploadURL_Created(t *testing.T) {
	shares := &fakeShares{
		validateResp: &services.ShareAccess{Share: testShare(), Node: testNode()},
		uploadResp:   &services.UploadIntent{Node: testNode(), UploadURL: "http://signed/put"},
	}
	s := newTestServer(&fakeNodes{}, shares)

	w := doRequest(t, s, http.MethodPost, "/shared/tok-1/upload-url", "",
		`{"name":"a.txt","mimeType":"text/plain","size":5}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("want 201, got %d: %s", w.Code, w.Body.String())
	}

	body := decodeBody(t, w)
	if body["uploadUrl"] != "http://signed/put" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestSharedList_ResponseShape(t *testing.T) {
	shares := &fakeShares{
		validateResp: &services.ShareAccess{Share: testShare(), Node: testNode()},
		sharedListResp: &services.SharedFolderPage{
			ParentID:    "p1",
			ParentName:  "Docs",
			Items:       []*models.Node{testNode()},
			CurrentPage: 1,
			TotalPages:  1,
			TotalItems:  1,
		},
	}
	s := newTestServer(&fakeNodes{}, shares)

	w := doRequest(t, s, http.MethodGet, "/shared/tok-1/files", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", w.Code)
	}

	body := decodeBody(t, w)
	if body["parentName"] != "Docs" || body["parentId"] != "p1" {
		t.Fatalf("unexpected body: %v", body)
	}
}
