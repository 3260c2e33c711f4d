package chat

import (
	"html/template"
	"net/http"

	"go.uber.org/zap"

	"github.com/zhouzirui/magic-chat/backend/internal/render"
)

var pageTemplate = template.Must(template.New("page").Parse(pageHTML))

type pageData struct {
	SessionID  string
	QueryParam string
	Views      []render.View
	Problem    *Problem
	Draft      string
}

func (h *Handler) handlePage(w http.ResponseWriter, r *http.Request) {
	s := h.resolveSession(w, r, r.URL.Query().Get(h.sessions.QueryParam))

	data := pageData{SessionID: s.ID, QueryParam: h.sessions.QueryParam}
	turns, err := h.chatSvc.Transcript(r.Context(), s.ID)
	if err != nil {
		h.logger.Error("load transcript failed", zap.String("session_id", s.ID), zap.Error(err))
		data.Problem = &Problem{Kind: "internal", Message: "The conversation could not be loaded."}
	}
	data.Views = h.renderer.RenderAll(turns)

	h.writePage(w, http.StatusOK, data)
}

func (h *Handler) handleSendForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	message := r.PostForm.Get("message")
	s := h.resolveSession(w, r, r.PostForm.Get(h.sessions.QueryParam))

	status := http.StatusOK
	data := pageData{SessionID: s.ID, QueryParam: h.sessions.QueryParam}

	_, err := h.chatSvc.Send(r.Context(), s.ID, message)
	if err != nil {
		h.logSendError(s.ID, err)
		problem := Describe(err)
		data.Problem = &problem
		status = problem.Status
		if problem.Kind == "validation" || problem.Kind == "in_progress" {
			data.Draft = message
		}
	}

	turns, terr := h.chatSvc.Transcript(r.Context(), s.ID)
	if terr != nil {
		h.logger.Error("load transcript failed", zap.String("session_id", s.ID), zap.Error(terr))
	}
	data.Views = h.renderer.RenderAll(turns)

	h.writePage(w, status, data)
}

func (h *Handler) writePage(w http.ResponseWriter, status int, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := pageTemplate.Execute(w, data); err != nil {
		h.logger.Error("render page failed", zap.Error(err))
	}
}

const pageHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>MTG Rules Assistant</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 48rem; margin: 0 auto; padding: 1rem; }
.turn { margin: .75rem 0; padding: .75rem 1rem; border-radius: .5rem; }
.turn-user { background: #e8f0fe; margin-left: 4rem; }
.turn-assistant { background: #f4f4f5; margin-right: 4rem; }
.banner { padding: .75rem 1rem; border-radius: .5rem; background: #fdecea; color: #611a15; }
.mana { display: inline-block; width: 1.1em; height: 1.1em; vertical-align: -0.15em; }
.mana-number, .mana-fallback { border-radius: 50%; background: #cac5c0; color: #000; font-size: .75em; text-align: center; line-height: 1.5em; width: 1.5em; height: 1.5em; }
.ruling-card { border: 1px solid #d4d4d8; border-radius: .5rem; padding: .5rem .75rem; margin: .5rem 0; }
.card-image { max-width: 12rem; }
form { display: flex; gap: .5rem; margin-top: 1rem; }
textarea { flex: 1; min-height: 3rem; }
</style>
</head>
<body>
<header><h1>MTG Rules Assistant</h1></header>
<main id="transcript" data-session="{{.SessionID}}">
{{- range .Views}}
<article class="turn turn-{{.Role}}" data-turn-id="{{.ID}}" data-kind="{{.Kind}}">{{.HTML}}</article>
{{- end}}
</main>
{{- with .Problem}}
<div class="banner banner-{{.Kind}}" role="alert">{{.Message}}</div>
{{- end}}
<form method="post" action="/send">
<input type="hidden" name="{{.QueryParam}}" value="{{.SessionID}}">
<textarea name="message" placeholder="Ask a rules question, e.g. what does {T} mean?" required>{{.Draft}}</textarea>
<button type="submit">Send</button>
</form>
<script>
(function () {
  var main = document.getElementById("transcript");
  var id = main.dataset.session;
  if (!id || !window.EventSource) { return; }
  var events = new EventSource("/api/sessions/" + encodeURIComponent(id) + "/events");
  events.addEventListener("turns", function (e) {
    JSON.parse(e.data).turns.forEach(function (v) {
      if (main.querySelector('[data-turn-id="' + v.id + '"]')) { return; }
      var el = document.createElement("article");
      el.className = "turn turn-" + v.role;
      el.dataset.turnId = v.id;
      el.dataset.kind = v.kind;
      el.innerHTML = v.html;
      main.appendChild(el);
    });
  });
})();
</script>
</body>
</html>
`
