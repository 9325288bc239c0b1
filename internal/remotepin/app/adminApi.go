package app

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multiaddr"
	"github.com/sirupsen/logrus"
	"github.com/tezoscommons/rpin/internal/remotepin/config"
	"github.com/tezoscommons/rpin/internal/remotepin/network"
	"github.com/tezoscommons/rpin/internal/remotepin/pinner"
	"github.com/tezoscommons/rpin/internal/remotepin/pinning"
)

// Pinner is the part of *pinner.Pinner the daemon uses.
type Pinner interface {
	AddPin(ctx context.Context, args pinner.PinArgs) (*pinning.PinStatus, error)
	ReplacePin(ctx context.Context, args pinner.ReplaceArgs) (*pinning.PinStatus, error)
}

// PinService is the part of *pinning.Client the admin API proxies.
type PinService interface {
	Get(ctx context.Context, requestID string) (*pinning.PinStatus, error)
	List(ctx context.Context, opts pinning.ListOptions) (*pinning.PinResults, error)
	Remove(ctx context.Context, requestID string) error
}

type Admin struct {
	net          network.NetworkInterface
	log          *logrus.Entry
	c            *config.Config
	pinner       Pinner
	svc          PinService
	l            sync.Mutex
	accessTokens []config.AccessTokens
}

func NewAdminAPI(net network.NetworkInterface, l *logrus.Entry, c *config.Config, p *pinner.Pinner, svc *pinning.Client) *Admin {
	if !c.AdminEnabled {
		l.Info("Admin API disabled")
		return nil
	}
	a := Admin{
		net:          net,
		log:          l.WithField("source", "admin-api"),
		c:            c,
		pinner:       p,
		svc:          svc,
		accessTokens: c.AdminTokens(),
	}
	go a.watchConfig()
	return &a
}

func (a *Admin) watchConfig() {
	ch := a.c.GetUpdates()
	for {
		n := <-ch
		a.l.Lock()
		a.log.Trace("updating access tokens")
		a.accessTokens = n.AdminTokens()
		a.l.Unlock()
	}
}

func (a *Admin) Run() {
	addr := a.c.Admin.Host + ":" + strconv.Itoa(a.c.Admin.Port)
	a.log.Info("Starting admin api on: " + addr)
	gin.SetMode(gin.ReleaseMode)
	if err := a.Handler().Run(addr); err != nil {
		a.log.Fatal(err)
	}
}

func (a *Admin) Handler() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if len(a.c.Admin.CORS.AllowedDomains) >= 1 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     a.c.Admin.CORS.AllowedDomains,
			AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Authorization", "Token", "Content-Type"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: true,
			// max age of prefilght cache
			MaxAge: 12 * time.Hour,
		}))
	}
	r.Use(a.checkAccessToken)
	r.POST("/pins", a.addRequest)
	r.GET("/pins", a.listRequest)
	r.POST("/pins/:requestid", a.replaceRequest)
	r.GET("/pins/:requestid", a.statusRequest)
	r.DELETE("/pins/:requestid", a.removeRequest)
	r.GET("/id", a.idRequest)
	return r
}

type pinRequest struct {
	Cid     string            `json:"cid" binding:"required"`
	Name    string            `json:"name"`
	Origins []string          `json:"origins"`
	Meta    map[string]string `json:"meta"`
}

func (r *pinRequest) toArgs() (pinner.PinArgs, error) {
	args := pinner.PinArgs{Name: r.Name, Meta: r.Meta}
	c, err := cid.Decode(r.Cid)
	if err != nil {
		return args, err
	}
	args.Cid = c
	for _, o := range r.Origins {
		a, err := multiaddr.NewMultiaddr(o)
		if err != nil {
			return args, err
		}
		args.Origins = append(args.Origins, a)
	}
	return args, nil
}

func (a *Admin) addRequest(c *gin.Context) {
	req := pinRequest{}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	args, err := req.toArgs()
	if err != nil {
		badRequest(c, err)
		return
	}
	a.log.WithField("cid", req.Cid).Info("pin request")
	st, err := a.pinner.AddPin(c.Request.Context(), args)
	if err != nil {
		a.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (a *Admin) replaceRequest(c *gin.Context) {
	req := pinRequest{}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	args, err := req.toArgs()
	if err != nil {
		badRequest(c, err)
		return
	}
	requestID := c.Param("requestid")
	a.log.WithField("cid", req.Cid).WithField("requestid", requestID).Info("pin replace request")
	st, err := a.pinner.ReplacePin(c.Request.Context(), pinner.ReplaceArgs{PinArgs: args, RequestID: requestID})
	if err != nil {
		a.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (a *Admin) statusRequest(c *gin.Context) {
	st, err := a.svc.Get(c.Request.Context(), c.Param("requestid"))
	if err != nil {
		a.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (a *Admin) listRequest(c *gin.Context) {
	opts := pinning.ListOptions{
		Name:  c.Query("name"),
		Match: pinning.TextMatch(c.Query("match")),
	}
	if s := c.Query("cid"); s != "" {
		opts.Cids = strings.Split(s, ",")
	}
	if s := c.Query("status"); s != "" {
		for _, st := range strings.Split(s, ",") {
			opts.Status = append(opts.Status, pinning.Status(st))
		}
	}
	if s := c.Query("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil {
			badRequest(c, err)
			return
		}
		opts.Limit = limit
	}
	res, err := a.svc.List(c.Request.Context(), opts)
	if err != nil {
		a.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (a *Admin) removeRequest(c *gin.Context) {
	if err := a.svc.Remove(c.Request.Context(), c.Param("requestid")); err != nil {
		a.serviceError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

type idResponse struct {
	ID        string   `json:"id"`
	Addresses []string `json:"addresses"`
}

func (a *Admin) idRequest(c *gin.Context) {
	res := idResponse{ID: a.net.ID(), Addresses: []string{}}
	for _, addr := range a.net.Addrs() {
		res.Addresses = append(res.Addresses, addr.String())
	}
	c.JSON(http.StatusOK, res)
}

func (a *Admin) checkAccessToken(c *gin.Context) {
	a.l.Lock()
	tokens := a.accessTokens
	a.l.Unlock()
	if len(tokens) == 0 {
		return
	}
	token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	if token == "" {
		token = c.GetHeader("Token")
	}
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "need access token"})
		return
	}
	for _, t := range tokens {
		if t.Token == token {
			return
		}
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func (a *Admin) serviceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, pinner.ErrUndefinedCid), errors.Is(err, pinner.ErrMissingRequestID):
		badRequest(c, err)
		return
	case errors.Is(err, context.Canceled):
		c.Status(499)
		return
	}
	a.log.Warn(err)
	var perr *pinning.Error
	if errors.As(err, &perr) && perr.StatusCode < 500 {
		c.JSON(perr.StatusCode, gin.H{"error": perr.Error()})
		return
	}
	c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
}
