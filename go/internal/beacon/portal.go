package beacon

import "net/http"

// captiveCheckPaths are the URLs phones fetch to detect a captive portal.
var captiveCheckPaths = []string{
	"/generate_204",
	"/gen_204",
	"/hotspot-detect.html",
	"/success.html",
	"/connecttest.txt",
	"/canonical.html",
}

// PortalHandler answers connectivity checks with a redirect to the listener page,
// which makes phones on the show network pop up the portal.
type PortalHandler struct {
	portalURL string
}

func NewPortalHandler(portalURL string) *PortalHandler {
	return &PortalHandler{portalURL: portalURL}
}

func (h *PortalHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, h.portalURL, http.StatusFound)
}

// RegisterPortalRoutes registers the connectivity check paths. An empty portal URL disables them.
func (h *PortalHandler) RegisterPortalRoutes(mux *http.ServeMux) {
	if h.portalURL == "" {
		return
	}
	for _, path := range captiveCheckPaths {
		mux.Handle(path, h)
	}
}
