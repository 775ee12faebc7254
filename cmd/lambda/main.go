package main

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	chiadapter "github.com/awslabs/aws-lambda-go-api-proxy/chi"
	"go.uber.org/zap"

	"flock-backend/internal/auth"
	"flock-backend/internal/config"
	"flock-backend/internal/di"
)

var (
	chiLambda *chiadapter.ChiLambdaV2
	container *di.Container

	coldStart     = true
	coldStartTime time.Time
)

// setup builds the container once per execution environment.
func setup() {
	coldStartTime = time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	cfg.IsLambda = true
	cfg.Auth.TrustGateway = true

	container, err = di.InitializeContainer(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}
	chiLambda = chiadapter.NewV2(container.Router)

	container.Logger.Info("Lambda cold start completed",
		zap.Duration("duration", time.Since(coldStartTime)),
	)
}

// Handler is the Lambda function handler
func Handler(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	applyAuthorizerIdentity(&req)
	if req.Headers[auth.HeaderGatewayAuthorized] == "" {
		container.Logger.Warn("No authorizer context found in request",
			zap.String("path", req.RequestContext.HTTP.Path),
			zap.String("request_id", req.RequestContext.RequestID),
		)
	}

	resp, err := chiLambda.ProxyWithContextV2(ctx, req)
	if resp.Headers == nil {
		resp.Headers = make(map[string]string)
	}
	if coldStart {
		resp.Headers["X-Cold-Start"] = "true"
		coldStart = false
	}
	if req.RequestContext.RequestID != "" {
		resp.Headers["X-Request-ID"] = req.RequestContext.RequestID
	}

	if resp.StatusCode >= 500 {
		container.Logger.Error("Lambda error response",
			zap.String("method", req.RequestContext.HTTP.Method),
			zap.String("path", req.RequestContext.HTTP.Path),
			zap.Int("status_code", resp.StatusCode),
		)
	}
	return resp, err
}

// applyAuthorizerIdentity replaces any client-supplied identity headers with
// the identity API Gateway verified. Requests without an authorizer context
// reach the router with no identity and are rejected there.
func applyAuthorizerIdentity(req *events.APIGatewayV2HTTPRequest) {
	if req.Headers == nil {
		req.Headers = make(map[string]string)
	}
	for k := range req.Headers {
		switch strings.ToLower(k) {
		case strings.ToLower(auth.HeaderUserID),
			strings.ToLower(auth.HeaderUserName),
			strings.ToLower(auth.HeaderGatewayAuthorized):
			delete(req.Headers, k)
		}
	}

	userID, name := authorizerIdentity(req.RequestContext.Authorizer)
	if userID == "" {
		return
	}
	req.Headers[auth.HeaderUserID] = userID
	if name != "" {
		req.Headers[auth.HeaderUserName] = name
	}
	req.Headers[auth.HeaderGatewayAuthorized] = "true"
}

func authorizerIdentity(a *events.APIGatewayV2HTTPRequestContextAuthorizerDescription) (string, string) {
	if a == nil {
		return "", ""
	}
	if a.JWT != nil && a.JWT.Claims["sub"] != "" {
		return a.JWT.Claims["sub"], a.JWT.Claims["name"]
	}
	if a.Lambda != nil {
		userID, _ := a.Lambda["sub"].(string)
		name, _ := a.Lambda["name"].(string)
		return userID, name
	}
	return "", ""
}

func main() {
	setup()
	lambda.Start(Handler)
}
