// Command rearrange-lambda serves placement requests behind a Lambda
// function URL.
package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/tidwall/gjson"

	"rearrange/config"
	"rearrange/physics"
	"rearrange/placement"
)

// deadlineMargin is kept back from the invocation deadline to write the
// response.
const deadlineMargin = 2 * time.Second

var jsonHeader = map[string]string{
	"Content-Type": "application/json",
}

type placeResult struct {
	Report placement.Report `json:"report"`
	Goal   json.RawMessage  `json:"goal"`
}

func newHandler(cfg config.Config) func(context.Context, events.LambdaFunctionURLRequest) (events.LambdaFunctionURLResponse, error) {
	return func(ctx context.Context, event events.LambdaFunctionURLRequest) (events.LambdaFunctionURLResponse, error) {
		body := event.Body
		if event.IsBase64Encoded {
			decoded, err := base64.StdEncoding.DecodeString(body)
			if err != nil {
				return errResp(400, "invalid base64 body")
			}
			body = string(decoded)
		}
		if !gjson.Valid(body) {
			return errResp(400, "invalid JSON")
		}

		req := gjson.Parse(body)
		scene := req.Get("scene")
		if !scene.IsObject() {
			return errResp(400, "missing scene field")
		}
		name := cfg.Placement.Algorithm
		if v := req.Get("algorithm"); v.Exists() {
			name = v.String()
		}
		alg, err := placement.ParseAlgorithm(name)
		if err != nil {
			return errResp(400, err.Error())
		}
		seed := cfg.Placement.Seed
		if v := req.Get("seed"); v.Exists() {
			seed = v.Int()
		}

		rng := rand.New(rand.NewSource(seed))
		s, err := physics.ParseScene([]byte(scene.Raw), rng)
		if err != nil {
			return errResp(422, err.Error())
		}

		set := cfg.Settings(slog.Default())
		set.Rand = rng
		if v := req.Get("timeout_ms"); v.Exists() && v.Int() > 0 {
			set.Timeout = time.Duration(v.Int()) * time.Millisecond
		}
		if dl, ok := ctx.Deadline(); ok {
			set.Timeout = min(set.Timeout, time.Until(dl)-deadlineMargin)
		}
		if set.Timeout <= 0 {
			return errResp(408, "no time left for the search")
		}

		rep, err := placement.Generate(ctx, s, alg, set)
		if errors.Is(err, context.Canceled) {
			return errResp(503, err.Error())
		}
		if err != nil {
			return errResp(500, err.Error())
		}
		goal, err := rep.State.MarshalScene()
		if err != nil {
			return errResp(500, err.Error())
		}

		respJSON, err := json.Marshal(placeResult{Report: rep, Goal: goal})
		if err != nil {
			return errResp(500, err.Error())
		}
		return events.LambdaFunctionURLResponse{StatusCode: 200, Headers: jsonHeader, Body: string(respJSON)}, nil
	}
}

func errResp(code int, msg string) (events.LambdaFunctionURLResponse, error) {
	body, _ := json.Marshal(map[string]string{"error": msg})
	return events.LambdaFunctionURLResponse{StatusCode: code, Headers: jsonHeader, Body: string(body)}, nil
}

func main() {
	cfg, err := config.Load(os.Getenv("REARRANGE_CONFIG"))
	if err != nil {
		log.Fatal(fmt.Errorf("rearrange-lambda: %w", err))
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Server.Level()})))
	lambda.Start(newHandler(cfg))
}
