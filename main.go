package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	_ "embed"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/tidwall/gjson"
	"google.golang.org/api/idtoken"

	"rearrange/config"
	"rearrange/physics"
	"rearrange/placement"
	"rearrange/planning"
	"rearrange/telemetry"
)

//go:embed schema.sql
var schema string

const maxSceneBytes = 1 << 20

func main() {
	for _, key := range []string{"PGCONN", "CLIENT_ID", "CLIENT_SECRET", "ADMINS"} {
		if os.Getenv(key) == "" {
			log.Fatalf("%s environment variable is required", key)
		}
	}

	cfg, err := config.Load(os.Getenv("REARRANGE_CONFIG"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Server.Level()})))

	tracing := telemetry.TracingConfig{ServiceName: "rearrange"}
	if cfg.Server.Tracing {
		tracing.Writer = os.Stderr
	}
	shutdown, err := telemetry.InitTracing(context.Background(), tracing)
	if err != nil {
		log.Fatalf("failed to init tracing: %v", err)
	}
	defer shutdown(context.Background())

	db, err := sql.Open("postgres", os.Getenv("PGCONN"))
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	log.Println("connected to database")

	if _, err := db.Exec(schema); err != nil {
		log.Fatalf("failed to apply schema: %v", err)
	}

	var solver planning.Solver
	if c, err := planning.NewClingo(cfg.Planning.Clingo); err != nil {
		log.Printf("planning disabled: %v", err)
	} else {
		solver = c
	}

	http.HandleFunc("POST /api/auth/google", handleGoogleCallback)
	http.HandleFunc("GET /api/admin/check", handleAdminCheck)
	http.HandleFunc("GET /api/scenes", handleListScenes(db))
	http.HandleFunc("POST /api/scenes", handleCreateScene(db))
	http.HandleFunc("GET /api/scenes/{sceneID}", handleGetScene(db))
	http.HandleFunc("DELETE /api/scenes/{sceneID}", handleDeleteScene(db))
	http.HandleFunc("GET /api/scenes/{sceneID}/placements", handleListPlacements(db))
	http.HandleFunc("POST /api/scenes/{sceneID}/placements", handleCreatePlacement(db, cfg))
	http.HandleFunc("POST /api/placements/{runID}/plan", handleCreatePlan(db, cfg, solver))
	http.Handle("GET /metrics", telemetry.Handler())
	http.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(); err != nil {
			http.Error(w, "db unhealthy", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprintln(w, "ok")
	})

	log.Printf("listening on %s", cfg.Server.Addr)
	log.Fatal(http.ListenAndServe(cfg.Server.Addr, nil))
}

func handleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	credential := r.FormValue("credential")
	if credential == "" {
		http.Error(w, "missing credential", http.StatusBadRequest)
		return
	}

	payload, err := idtoken.Validate(r.Context(), credential, os.Getenv("CLIENT_ID"))
	if err != nil {
		log.Println("failed to validate token:", err)
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	email, _ := payload.Claims["email"].(string)
	if email == "" {
		http.Error(w, "token has no email", http.StatusUnauthorized)
		return
	}

	writeJSON(w, map[string]any{
		"email":   email,
		"name":    payload.Claims["name"],
		"picture": payload.Claims["picture"],
		"token":   signEmail(email),
	})
}

func signEmail(email string) string {
	h := hmac.New(sha256.New, []byte(os.Getenv("CLIENT_SECRET")))
	h.Write([]byte(email))
	sig := base64.RawURLEncoding.EncodeToString(h.Sum(nil))
	return base64.RawURLEncoding.EncodeToString([]byte(email)) + "." + sig
}

func authorize(r *http.Request) (string, bool) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	parts := strings.SplitN(token, ".", 2)
	if len(parts) != 2 {
		return "", false
	}
	emailBytes, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return "", false
	}
	email := string(emailBytes)
	if !hmac.Equal([]byte(signEmail(email)), []byte(token)) {
		return "", false
	}
	return email, true
}

func isAdmin(email string) bool {
	return slices.ContainsFunc(strings.Split(os.Getenv("ADMINS"), ","), func(a string) bool {
		return strings.TrimSpace(a) == email
	})
}

func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	email, ok := authorize(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return "", false
	}
	return email, true
}

func requireAdmin(w http.ResponseWriter, r *http.Request) (string, bool) {
	email, ok := requireUser(w, r)
	if !ok {
		return "", false
	}
	if !isAdmin(email) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return "", false
	}
	return email, true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func sceneID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("sceneID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid scene ID", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// runParams reads the algorithm and seed of a placement request, falling back
// to the configured ones.
func runParams(r *http.Request, cfg config.Config) (placement.Algorithm, int64, error) {
	name := r.URL.Query().Get("algorithm")
	if name == "" {
		name = cfg.Placement.Algorithm
	}
	alg, err := placement.ParseAlgorithm(name)
	if err != nil {
		return 0, 0, err
	}
	seed := cfg.Placement.Seed
	if v := r.URL.Query().Get("seed"); v != "" {
		if seed, err = strconv.ParseInt(v, 10, 64); err != nil {
			return 0, 0, fmt.Errorf("invalid seed %q", v)
		}
	}
	return alg, seed, nil
}

// sceneName prefers an explicit ?name= and falls back to a top-level "name"
// field of the scene document.
func sceneName(r *http.Request, body []byte) string {
	if name := r.URL.Query().Get("name"); name != "" {
		return name
	}
	return gjson.GetBytes(body, "name").String()
}

func handleAdminCheck(w http.ResponseWriter, r *http.Request) {
	email, ok := requireUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, map[string]bool{"admin": isAdmin(email)})
}

func handleListScenes(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := requireUser(w, r); !ok {
			return
		}
		rows, err := db.Query(`
			SELECT s.id, s.name, s.created_by, s.created_at, COUNT(ru.id)
			FROM scenes s
			LEFT JOIN runs ru ON ru.scene_id = s.id
			GROUP BY s.id, s.name, s.created_by, s.created_at
			ORDER BY s.id`)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		defer rows.Close()

		type scene struct {
			ID        int64     `json:"id"`
			Name      string    `json:"name"`
			CreatedBy string    `json:"created_by"`
			CreatedAt time.Time `json:"created_at"`
			Runs      int       `json:"runs"`
		}
		scenes := []scene{}
		for rows.Next() {
			var s scene
			if err := rows.Scan(&s.ID, &s.Name, &s.CreatedBy, &s.CreatedAt, &s.Runs); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			scenes = append(scenes, s)
		}
		writeJSON(w, scenes)
	}
}

func handleCreateScene(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		email, ok := requireAdmin(w, r)
		if !ok {
			return
		}
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxSceneBytes))
		if err != nil {
			http.Error(w, "scene too large", http.StatusRequestEntityTooLarge)
			return
		}
		name := sceneName(r, body)
		if name == "" {
			http.Error(w, "name is required", http.StatusBadRequest)
			return
		}
		if _, err := physics.ParseScene(body, rand.New(rand.NewSource(1))); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var id int64
		err = db.QueryRow("INSERT INTO scenes (name, scene, created_by) VALUES ($1, $2, $3) RETURNING id", name, string(body), email).Scan(&id)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]any{"id": id, "name": name})
	}
}

func handleGetScene(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := requireUser(w, r); !ok {
			return
		}
		id, ok := sceneID(w, r)
		if !ok {
			return
		}
		var name string
		var scene []byte
		err := db.QueryRow("SELECT name, scene FROM scenes WHERE id = $1", id).Scan(&name, &scene)
		if err != nil {
			http.Error(w, "scene not found", http.StatusNotFound)
			return
		}
		writeJSON(w, map[string]any{"id": id, "name": name, "scene": json.RawMessage(scene)})
	}
}

func handleDeleteScene(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := requireAdmin(w, r); !ok {
			return
		}
		id, ok := sceneID(w, r)
		if !ok {
			return
		}
		result, err := db.Exec("DELETE FROM scenes WHERE id = $1", id)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if n, _ := result.RowsAffected(); n == 0 {
			http.Error(w, "scene not found", http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleListPlacements(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := requireUser(w, r); !ok {
			return
		}
		id, ok := sceneID(w, r)
		if !ok {
			return
		}

		// ?algorithm=inner,middle narrows the list
		var algs []string
		for _, a := range strings.Split(r.URL.Query().Get("algorithm"), ",") {
			if a = strings.TrimSpace(a); a == "" {
				continue
			}
			alg, err := placement.ParseAlgorithm(a)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			algs = append(algs, alg.String())
		}

		query := "SELECT id, algorithm, seed, report, created_at FROM runs WHERE scene_id = $1"
		args := []any{id}
		if len(algs) > 0 {
			query += " AND algorithm = ANY($2)"
			args = append(args, pq.Array(algs))
		}
		rows, err := db.Query(query+" ORDER BY created_at", args...)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		defer rows.Close()

		type run struct {
			ID        uuid.UUID       `json:"id"`
			Algorithm string          `json:"algorithm"`
			Seed      int64           `json:"seed"`
			Report    json.RawMessage `json:"report"`
			CreatedAt time.Time       `json:"created_at"`
		}
		runs := []run{}
		for rows.Next() {
			var ru run
			var report []byte
			if err := rows.Scan(&ru.ID, &ru.Algorithm, &ru.Seed, &report, &ru.CreatedAt); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			ru.Report = report
			runs = append(runs, ru)
		}
		writeJSON(w, runs)
	}
}

func handleCreatePlacement(db *sql.DB, cfg config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := requireAdmin(w, r); !ok {
			return
		}
		id, ok := sceneID(w, r)
		if !ok {
			return
		}
		alg, seed, err := runParams(r, cfg)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		var scene []byte
		if err := db.QueryRow("SELECT scene FROM scenes WHERE id = $1", id).Scan(&scene); err != nil {
			http.Error(w, "scene not found", http.StatusNotFound)
			return
		}
		rng := rand.New(rand.NewSource(seed))
		s, err := physics.ParseScene(scene, rng)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}

		set := cfg.Settings(slog.Default())
		set.Rand = rng
		set.Observer = telemetry.Observer{}
		rep, err := placement.Generate(r.Context(), s, alg, set)
		if err != nil {
			log.Printf("placement %s on scene %d failed: %v", alg, id, err)
			status := http.StatusInternalServerError
			if errors.Is(err, context.Canceled) {
				status = http.StatusServiceUnavailable
			}
			http.Error(w, err.Error(), status)
			return
		}

		report, goal, err := encodeRun(rep)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		runID := uuid.New()
		_, err = db.Exec("INSERT INTO runs (id, scene_id, algorithm, seed, report, goal) VALUES ($1, $2, $3, $4, $5, $6)",
			runID, id, alg.String(), seed, string(report), string(goal))
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			http.Error(w, "scene not found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]any{
			"id":     runID,
			"report": json.RawMessage(report),
			"goal":   json.RawMessage(goal),
		})
	}
}

// encodeRun renders a finished placement as the report and goal scene stored
// on its run row.
func encodeRun(rep placement.Report) (report, goal []byte, err error) {
	report, err = json.Marshal(rep)
	if err != nil {
		return nil, nil, fmt.Errorf("encode report: %w", err)
	}
	goal, err = rep.State.MarshalScene()
	if err != nil {
		return nil, nil, fmt.Errorf("encode goal: %w", err)
	}
	return report, goal, nil
}

func handleCreatePlan(db *sql.DB, cfg config.Config, solver planning.Solver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := requireAdmin(w, r); !ok {
			return
		}
		runID, err := uuid.Parse(r.PathValue("runID"))
		if err != nil {
			http.Error(w, "invalid run ID", http.StatusBadRequest)
			return
		}

		var goal []byte
		if err := db.QueryRow("SELECT goal FROM runs WHERE id = $1", runID).Scan(&goal); err != nil {
			http.Error(w, "run not found", http.StatusNotFound)
			return
		}
		s, err := physics.ParseScene(goal, rand.New(rand.NewSource(cfg.Placement.Seed)))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		p, err := planning.GeneratePlan(r.Context(), s, cfg.PlanOptions(solver, slog.Default()))
		switch {
		case errors.Is(err, planning.ErrSolverUnavailable):
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		case errors.Is(err, planning.ErrNoPlan):
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		case err != nil:
			log.Printf("plan for run %s failed: %v", runID, err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		plan, err := json.Marshal(p)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		var id int64
		if err := db.QueryRow("INSERT INTO plans (run_id, plan) VALUES ($1, $2) RETURNING id", runID, string(plan)).Scan(&id); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]any{"id": id, "plan": json.RawMessage(plan)})
	}
}
