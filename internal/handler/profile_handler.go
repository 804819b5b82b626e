package handler

import (
	"bytes"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/hitoshi/paygate/internal/middleware"
	"github.com/hitoshi/paygate/internal/model"
)

var profileTemplate = template.Must(template.New("profile").Parse(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>Profile</title></head>
<body>
<h1>{{.DisplayName}}</h1>
{{with .PrimaryEmail}}<p>{{.}}</p>{{end}}
{{range .Photos}}<img src="{{.}}" alt="profile photo" width="96" height="96">{{end}}
<p><a href="/logout">Log out</a></p>
</body>
</html>
`))

// ProfileHandler はログインユーザーのプロフィール画面を返す。
type ProfileHandler struct {
	landingURL string
}

// NewProfileHandler はProfileHandlerを生成する。
func NewProfileHandler(landingURL string) *ProfileHandler {
	if landingURL == "" {
		landingURL = "/"
	}
	return &ProfileHandler{landingURL: landingURL}
}

// Profile はセッションのIdentityを表示する。匿名の場合はランディングページへリダイレクトする。
// GET /profile
func (h *ProfileHandler) Profile(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.SessionFromContext(r.Context())
	if !ok || !session.Authenticated() {
		http.Redirect(w, r, h.landingURL, http.StatusFound)
		return
	}

	var buf bytes.Buffer
	if err := profileTemplate.Execute(&buf, profileView(session.Identity)); err != nil {
		slog.Error("failed to render profile", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

type profileData struct {
	DisplayName  string
	PrimaryEmail string
	Photos       []string
}

func profileView(identity *model.Identity) profileData {
	return profileData{
		DisplayName:  identity.DisplayName,
		PrimaryEmail: identity.PrimaryEmail(),
		Photos:       identity.Photos,
	}
}
