package router

import (
	"hearcheck-go/internal/config"
	"hearcheck-go/internal/handlers"
	"hearcheck-go/internal/services"
	"hearcheck-go/internal/utils"
	"net/http"
	"time"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/unrolled/secure"
	"go.uber.org/zap"
)

const sessionName = "hearcheck"

func keyFunc(c *gin.Context) string {
	return c.ClientIP()
}

func errorHandler(c *gin.Context, info ratelimit.Info) {
	c.Header("Retry-After", info.ResetTime.UTC().Format(http.TimeFormat))
	c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests. Try again later."})
}

// Setup builds the HTTP engine with every route of the screening API.
func Setup(log *zap.Logger, conf *config.Config, service *services.ScreeningService) (*gin.Engine, error) {
	if err := handlers.RegisterValidators(); err != nil {
		return nil, err
	}

	// Set up a new Gin router, add recovery middleware and request logging.
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger(log))

	secret, generated, err := utils.SessionKey(conf.Server.SessionSecret)
	if err != nil {
		return nil, err
	}
	if generated {
		log.Warn("server.session_secret is not set, sessions will not survive a restart")
	}
	store := cookie.NewStore(secret)
	store.Options(sessions.Options{
		Path:     "/",
		HttpOnly: true,
		Secure:   conf.Server.SecureCookies,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   86400 * 7,
	})
	router.Use(sessions.Sessions(sessionName, store))

	secureMiddleware := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ContentSecurityPolicy: "default-src 'self'",
		IsDevelopment:         conf.Server.Mode != gin.ReleaseMode,
	})
	router.Use(func(c *gin.Context) {
		err := secureMiddleware.Process(c.Writer, c.Request)
		if err != nil {
			c.Abort()
			return
		}
	})

	// Handlers and routes
	userHandler := handlers.NewUserHandler(log, service)
	screeningHandler := handlers.NewScreeningHandler(log, service)
	resultsHandler := handlers.NewResultsHandler(log, service)
	toneHandler := handlers.NewToneHandler(log)

	rateLimitStore := ratelimit.InMemoryStore(&ratelimit.InMemoryOptions{
		Rate:  time.Minute,
		Limit: conf.Server.RegisterRateLimit,
	})
	limiter := ratelimit.RateLimiter(rateLimitStore, &ratelimit.Options{
		ErrorHandler: errorHandler,
		KeyFunc:      keyFunc,
	})

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/tone", toneHandler.Tone)

	router.POST("/register", limiter, userHandler.Register)

	participant := router.Group("/")
	participant.Use(ParticipantLoader(log, service))
	{
		participant.GET("/get_user_info", userHandler.GetUserInfo)

		participant.POST("/start_test", screeningHandler.Start)
		participant.GET("/next_test", screeningHandler.Next)
		participant.POST("/submit_response", screeningHandler.Submit)
		participant.GET("/summary", screeningHandler.Summary)

		participant.GET("/audiogram", resultsHandler.Audiogram)
		participant.GET("/audiogram/chart", resultsHandler.AudiogramChart)
		participant.GET("/audiogram/history", resultsHandler.AudiogramHistory)
	}

	return router, nil
}
