package api

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"taskeer/internal/auth"
	"taskeer/internal/config"
	"taskeer/internal/handlers"
	"taskeer/internal/websocket"
)

// Store is everything the handlers persist through; *database.DB
// implements it.
type Store interface {
	handlers.UserStore
	handlers.ListStore
	handlers.TaskStore
	handlers.SharingStore
	handlers.NotificationStore
	websocket.RoomAuthorizer
}

func SetupRouter(store Store, hub *websocket.Hub, notifier handlers.Sender, cfg *config.Config, log logrus.FieldLogger) *gin.Engine {
	router := gin.Default()

	// Custom CORS middleware
	router.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		allowed := false
		for _, allowedOrigin := range cfg.CORS.AllowedOrigins {
			if origin == allowedOrigin {
				allowed = true
				break
			}
		}

		if allowed {
			c.Header("Access-Control-Allow-Origin", origin)
		}
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Length, Content-Type, Authorization, X-Request-ID")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	jwtManager := auth.NewJWTManager(cfg.JWT)

	authHandler := handlers.NewAuthHandler(store, jwtManager, log)
	userHandler := handlers.NewUserHandler(store, log)
	listHandler := handlers.NewListHandler(store, cfg.PublicURL, log)
	taskHandler := handlers.NewTaskHandler(store, notifier, log)
	sharingHandler := handlers.NewSharingHandler(store, notifier, log)
	notificationHandler := handlers.NewNotificationHandler(store, log)
	wsHandler := handlers.NewWebSocketHandler(hub, store)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// The socket handshake carries the token as a query parameter.
	router.GET("/chat", auth.JWTMiddleware(jwtManager), wsHandler.HandleWebSocket)

	// Public routes
	api := router.Group("/api")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
		}
	}

	// Protected routes
	protected := api.Group("")
	protected.Use(auth.JWTMiddleware(jwtManager))
	{
		protected.GET("/usuarios/me", userHandler.GetCurrentUser)

		lists := protected.Group("/listas")
		{
			lists.GET("", listHandler.GetLists)
			lists.POST("", listHandler.CreateList)
			lists.GET("/:id", listHandler.GetList)
			lists.PUT("/:id", listHandler.UpdateList)
			lists.DELETE("/:id", listHandler.DeleteList)
			lists.PUT("/:id/compartir", listHandler.ShareList)
			lists.GET("/:id/tareas", listHandler.GetTasks)
			lists.GET("/:id/online", wsHandler.GetOnlineUsers)
		}

		tasks := protected.Group("/tareas")
		{
			tasks.POST("", taskHandler.CreateTask)
			tasks.PUT("/:id", taskHandler.UpdateTask)
			tasks.DELETE("/:id", taskHandler.DeleteTask)
			tasks.PATCH("/:id/estado", taskHandler.ChangeState)
			tasks.PATCH("/:id/mi-dia", taskHandler.SetMyDay)
			tasks.POST("/:id/asignar", taskHandler.Assign)
			tasks.DELETE("/:id/asignar", taskHandler.Unassign)
		}

		sharing := protected.Group("/compartir")
		{
			sharing.POST("/lista/unirse", sharingHandler.JoinByKey)
			sharing.GET("/lista/:id/info", sharingHandler.PermissionInfo)
			sharing.GET("/lista/:id/usuarios", sharingHandler.Members)
			sharing.DELETE("/lista/:id/usuario/:uid", sharingHandler.RemoveMember)
			sharing.PUT("/lista/:id/usuario/:uid/rol", sharingHandler.ChangeRole)
			sharing.POST("/lista/:id/invitar", sharingHandler.Invite)
			sharing.POST("/lista/:id/salir", sharingHandler.Leave)
			sharing.POST("/lista/:id/descompartir", sharingHandler.Unshare)
			sharing.GET("/mis-listas-compartidas", sharingHandler.SharedLists)
			sharing.GET("/invitaciones/pendientes", sharingHandler.PendingInvitations)
			sharing.POST("/invitaciones/:token/aceptar", sharingHandler.AcceptInvitation)
			sharing.POST("/invitaciones/:token/rechazar", sharingHandler.RejectInvitation)
		}

		notifications := protected.Group("/notificaciones")
		{
			notifications.GET("", notificationHandler.GetNotifications)
			notifications.PUT("/leer-todas", notificationHandler.MarkAllAsRead)
			notifications.PUT("/:id/leer", notificationHandler.MarkAsRead)
			notifications.POST("/:id/aceptar", notificationHandler.Accept)
			notifications.POST("/:id/rechazar", notificationHandler.Reject)
		}
	}

	return router
}
