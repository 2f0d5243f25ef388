// Package terrain talks to the member achievements API: a Cognito
// USER_PASSWORD_AUTH login whose id token authorizes the REST calls.
package terrain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	cip "github.com/aws/aws-sdk-go/service/cognitoidentityprovider"

	"crest/internal/httpx"
	logx "crest/pkg/logx"
)

const (
	DefaultRegion          = "ap-southeast-2"
	DefaultClientID        = "6v98tbc09aqfvh52fml3usas3c"
	DefaultMembersURL      = "https://members.terrain.scouts.com.au"
	DefaultAchievementsURL = "https://achievements.terrain.scouts.com.au"
)

type Config struct {
	Region          string
	ClientID        string
	CognitoEndpoint string // empty uses the regional AWS endpoint
	MembersURL      string
	AchievementsURL string
	HTTP            *http.Client
}

func (c Config) withDefaults() Config {
	if c.Region == "" {
		c.Region = DefaultRegion
	}
	if c.ClientID == "" {
		c.ClientID = DefaultClientID
	}
	if c.MembersURL == "" {
		c.MembersURL = DefaultMembersURL
	}
	if c.AchievementsURL == "" {
		c.AchievementsURL = DefaultAchievementsURL
	}
	c.MembersURL = strings.TrimRight(c.MembersURL, "/")
	c.AchievementsURL = strings.TrimRight(c.AchievementsURL, "/")
	return c
}

// Client holds one login. It is safe for concurrent use; Login replaces the token.
type Client struct {
	cfg  Config
	http *http.Client
	log  logx.Logger

	mu    sync.Mutex
	idp   *cip.CognitoIdentityProvider
	token string
}

func New(cfg Config, log logx.Logger) *Client {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = cfg.withDefaults()
	h := cfg.HTTP
	if h == nil {
		h = httpx.New(httpx.Config{RetryMax: 2}, log)
	}
	return &Client{cfg: cfg, http: h, log: log.With(logx.String("comp", "terrain"))}
}

func (c *Client) provider() (*cip.CognitoIdentityProvider, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.idp != nil {
		return c.idp, nil
	}
	awsCfg := &aws.Config{
		Region:      aws.String(c.cfg.Region),
		Credentials: credentials.AnonymousCredentials,
		HTTPClient:  c.http,
		MaxRetries:  aws.Int(0),
	}
	if c.cfg.CognitoEndpoint != "" {
		awsCfg.Endpoint = aws.String(c.cfg.CognitoEndpoint)
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("aws session: %w", err)
	}
	c.idp = cip.New(sess)
	return c.idp, nil
}

// Login exchanges credentials for an id token. A rejection by the identity
// provider is returned as *AuthError; transport failures are plain errors.
func (c *Client) Login(ctx context.Context, username, password string) error {
	idp, err := c.provider()
	if err != nil {
		return err
	}
	out, err := idp.InitiateAuthWithContext(ctx, &cip.InitiateAuthInput{
		ClientId: aws.String(c.cfg.ClientID),
		AuthFlow: aws.String(cip.AuthFlowTypeUserPasswordAuth),
		AuthParameters: map[string]*string{
			"USERNAME": aws.String(username),
			"PASSWORD": aws.String(password),
		},
	})
	if err != nil {
		var rf awserr.RequestFailure
		if errors.As(err, &rf) && rf.StatusCode() >= 400 && rf.StatusCode() < 500 {
			return &AuthError{Reason: rf.Code() + ": " + rf.Message()}
		}
		return fmt.Errorf("terrain login: %w", err)
	}
	if out.AuthenticationResult == nil || aws.StringValue(out.AuthenticationResult.IdToken) == "" {
		// A challenge (e.g. NEW_PASSWORD_REQUIRED) cannot be answered unattended.
		return &AuthError{Reason: "ChallengeRequired: " + aws.StringValue(out.ChallengeName)}
	}

	c.mu.Lock()
	c.token = aws.StringValue(out.AuthenticationResult.IdToken)
	c.mu.Unlock()
	c.log.Debug("logged in", logx.String("user", username))
	return nil
}

// Units returns the unit ids of the logged in profile, in profile order.
func (c *Client) Units(ctx context.Context) ([]string, error) {
	var body struct {
		Profiles []struct {
			Unit struct {
				ID string `json:"id"`
			} `json:"unit"`
		} `json:"profiles"`
	}
	if err := c.getJSON(ctx, c.cfg.MembersURL+"/profiles", &body); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(body.Profiles))
	for _, p := range body.Profiles {
		if p.Unit.ID != "" {
			out = append(out, p.Unit.ID)
		}
	}
	return out, nil
}

func (c *Client) Pending(ctx context.Context, unit string) ([]Submission, error) {
	return c.submissions(ctx, unit, "pending")
}

// Finalised returns approved and rejected submissions alike.
func (c *Client) Finalised(ctx context.Context, unit string) ([]Submission, error) {
	return c.submissions(ctx, unit, "finalised")
}

func (c *Client) submissions(ctx context.Context, unit, status string) ([]Submission, error) {
	var body struct {
		Results []Submission `json:"results"`
	}
	u := c.cfg.AchievementsURL + "/units/" + url.PathEscape(unit) + "/submissions?status=" + status
	if err := c.getJSON(ctx, u, &body); err != nil {
		return nil, err
	}
	return body.Results, nil
}

func (c *Client) MemberAchievements(ctx context.Context, member string) ([]MemberAchievement, error) {
	var body struct {
		Results []MemberAchievement `json:"results"`
	}
	if err := c.getJSON(ctx, c.cfg.AchievementsURL+"/members/"+url.PathEscape(member)+"/achievements", &body); err != nil {
		return nil, err
	}
	return body.Results, nil
}

func (c *Client) getJSON(ctx context.Context, u string, dst any) error {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()
	if token == "" {
		return ErrNotLoggedIn
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", token)
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", u, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		_, _ = io.Copy(io.Discard, resp.Body)
		return &AuthError{Reason: fmt.Sprintf("Unauthorized: %s returned %s", u, resp.Status)}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("GET %s: unexpected status %s", u, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("GET %s: decode: %w", u, err)
	}
	return nil
}
