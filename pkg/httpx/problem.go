package httpx

import (
	"encoding/json"
	"net/http"
)

// Problem is an RFC 7807 problem-details payload. Resource servers use it
// for every non-2xx response so clients only ever parse one error shape.
type Problem struct {
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// WriteProblem writes p as application/problem+json with p.Status.
func WriteProblem(w http.ResponseWriter, p Problem) {
	NoCache(w)
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// NotFoundProblem is a convenience for 404 responses.
func NotFoundProblem(w http.ResponseWriter, detail string) {
	WriteProblem(w, Problem{Title: "Not Found", Status: http.StatusNotFound, Detail: detail})
}

// BadRequestProblem is a convenience for 400 responses.
func BadRequestProblem(w http.ResponseWriter, detail string) {
	WriteProblem(w, Problem{Title: "Bad Request", Status: http.StatusBadRequest, Detail: detail})
}

// ConflictProblem is a convenience for 409 responses.
func ConflictProblem(w http.ResponseWriter, detail string) {
	WriteProblem(w, Problem{Title: "Conflict", Status: http.StatusConflict, Detail: detail})
}

// InternalProblem writes a 500 without leaking internal detail.
func InternalProblem(w http.ResponseWriter) {
	WriteProblem(w, Problem{Title: "Internal Server Error", Status: http.StatusInternalServerError})
}
