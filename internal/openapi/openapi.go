// Package openapi describes the HTTP API for /v3/api-docs.
package openapi

import (
	"net/http"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/labstack/echo/v4"
)

func str() *openapi3.Schema { return openapi3.NewStringSchema() }

func query(name string) *openapi3.ParameterRef {
	return &openapi3.ParameterRef{Value: openapi3.NewQueryParameter(name).WithRequired(true).WithSchema(str())}
}

func pathID() *openapi3.ParameterRef {
	return &openapi3.ParameterRef{Value: openapi3.NewPathParameter("id").WithSchema(str())}
}

func required(s *openapi3.Schema, names ...string) *openapi3.Schema {
	s.Required = names
	return s
}

func jsonBody(s *openapi3.Schema) *openapi3.RequestBodyRef {
	return &openapi3.RequestBodyRef{Value: openapi3.NewRequestBody().WithRequired(true).WithJSONSchema(s)}
}

func responses(codes map[string]string) openapi3.Responses {
	out := openapi3.Responses{}
	for code, desc := range codes {
		out[code] = &openapi3.ResponseRef{Value: openapi3.NewResponse().WithDescription(desc)}
	}
	return out
}

func op(tag, summary string, codes map[string]string, params ...*openapi3.ParameterRef) *openapi3.Operation {
	return &openapi3.Operation{
		Tags:       []string{tag},
		Summary:    summary,
		Parameters: params,
		Responses:  responses(codes),
	}
}

var (
	tokenPair = openapi3.NewObjectSchema().
			WithProperty("accessToken", str()).
			WithProperty("refreshToken", str())

	credentials = required(openapi3.NewObjectSchema().
			WithProperty("email", str()).
			WithProperty("username", str()).
			WithProperty("password", str()), "email", "username", "password")

	login = required(openapi3.NewObjectSchema().
		WithProperty("username", str()).
		WithProperty("password", str()), "username", "password")

	portfolioForm = openapi3.NewObjectSchema().
			WithProperty("name", str()).
			WithProperty("email", str()).
			WithProperty("phoneNumber", str()).
			WithProperty("address", str()).
			WithProperty("skills", openapi3.NewArraySchema().WithItems(str())).
			WithProperty("isPublic", openapi3.NewBoolSchema()).
			WithProperty("userPhoto", str().WithFormat("binary"))
)

func multipartBody() *openapi3.RequestBodyRef {
	content := openapi3.Content{"multipart/form-data": openapi3.NewMediaType().WithSchema(portfolioForm)}
	return &openapi3.RequestBodyRef{Value: openapi3.NewRequestBody().WithContent(content)}
}

// Document builds the API description. Protected operations expect an
// access token in the Authorization header as "Bearer <token>".
func Document() *openapi3.T {
	ok := map[string]string{"200": "OK", "400": "Rejected request"}
	authed := map[string]string{"200": "OK", "401": "Missing or invalid token", "403": "Not the owner", "404": "Not found"}

	setCreds := op("auth", "Choose username and password", map[string]string{"200": "OK", "400": "Rejected request", "409": "Username taken"})
	setCreds.RequestBody = jsonBody(credentials)

	loginOp := op("auth", "Sign in with username and password", map[string]string{"200": "Token pair", "401": "Invalid credentials"})
	loginOp.RequestBody = jsonBody(login)
	loginOp.Responses["200"].Value.WithJSONSchema(tokenPair)

	refreshOp := op("auth", "Exchange a refresh token", map[string]string{"200": "Token pair", "401": "Refresh token rejected"}, query("refreshToken"))
	refreshOp.Responses["200"].Value.WithJSONSchema(tokenPair)

	checkOp := op("auth", "Report whether a token is valid", map[string]string{"200": "true or false"})
	checkOp.RequestBody = &openapi3.RequestBodyRef{Value: openapi3.NewRequestBody().
		WithContent(openapi3.NewContentWithSchema(str(), []string{"text/plain"}))}

	create := op("portfolio", "Create a portfolio", map[string]string{"201": "Created", "400": "Rejected request", "401": "Missing or invalid token"})
	create.RequestBody = multipartBody()
	update := op("portfolio", "Update a portfolio", authed, pathID())
	update.RequestBody = multipartBody()

	return &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:       "Portfolio API",
			Description: "Email OTP registration, JWT sessions and user portfolios.",
			Version:     "1.0.0",
		},
		Paths: openapi3.Paths{
			"/api/auth/register": {
				Post: op("auth", "Send a registration code", map[string]string{"200": "OK", "400": "Rejected request", "409": "Already registered", "502": "Delivery failed"}, query("email")),
			},
			"/api/auth/verify-otp":  {Post: op("auth", "Confirm a registration code", ok, query("email"), query("otp"))},
			"/api/auth/set-creds":   {Post: setCreds},
			"/api/auth/login":       {Post: loginOp},
			"/api/auth/refresh":     {Post: refreshOp},
			"/api/auth/check-token": {Post: checkOp},
			"/login/google":         {Get: op("google", "Redirect to Google consent", map[string]string{"302": "Redirect"})},
			"/login/google/callback": {
				Post: op("google", "Sign in with a Google authorization code", map[string]string{"200": "Token pair and user", "400": "Rejected request", "502": "Provider unavailable"}, query("code")),
			},
			"/api/portfolios":        {Post: create},
			"/api/portfolios/public": {Get: op("portfolio", "List public portfolios", map[string]string{"200": "OK"})},
			"/api/portfolios/my":     {Get: op("portfolio", "List own portfolios", map[string]string{"200": "OK", "401": "Missing or invalid token"})},
			"/api/portfolios/{id}": {
				Get:    op("portfolio", "Get a portfolio", authed, pathID()),
				Put:    update,
				Delete: op("portfolio", "Delete a portfolio", authed, pathID()),
			},
			"/api/portfolios/{id}/visibility": {Patch: op("portfolio", "Toggle public visibility", authed, pathID())},
		},
	}
}

// Handler serves the document as JSON, built on first use.
func Handler() echo.HandlerFunc {
	var (
		once sync.Once
		doc  *openapi3.T
	)
	return func(c echo.Context) error {
		once.Do(func() { doc = Document() })
		return c.JSON(http.StatusOK, doc)
	}
}
