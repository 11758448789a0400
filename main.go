package main

import (
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/gesukichi/DeepAMARIS/config"
	"github.com/gesukichi/DeepAMARIS/controller"
	"github.com/gesukichi/DeepAMARIS/dao"
	"github.com/gesukichi/DeepAMARIS/logic"
	"github.com/gesukichi/DeepAMARIS/middleware"
	"github.com/gesukichi/DeepAMARIS/models"
	"github.com/gesukichi/DeepAMARIS/pkg"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if len(os.Args) < 2 {
		log.Fatal().Msg("Usage: go run main.go <config.yaml>")
	}
	cfg, err := config.Load(os.Args[1])
	if err != nil {
		log.Fatal().Err(err).Str("path", os.Args[1]).Msg("Failed to load config")
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	if err := db.AutoMigrate(&models.User{}, &models.Conversation{}, &models.Message{}); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate database")
	}

	chatClient := pkg.NewChatClient(cfg.Chat.BaseURL, cfg.Chat.APIKey)

	var search logic.ToolResolver
	if cfg.Search.Enabled {
		search = pkg.NewSearchClient(cfg.Search.Endpoint, cfg.Search.APIKey)
	}

	// DAOs
	userDAO := dao.NewUserDAO(db)
	convoDAO := dao.NewConversationDAO(db)
	messageDAO := dao.NewMessageDAO(db)

	// Logics
	messageLogic := logic.NewMessageLogic(userDAO, convoDAO, messageDAO, chatClient, search, cfg.Chat)
	convoLogic := logic.NewConversationLogic(convoDAO, messageDAO)

	// Controllers
	convoCtrl := controller.NewConversationController(messageLogic, cfg.Chat.Stream)
	historyCtrl := controller.NewHistoryController(messageLogic, convoLogic, cfg.Chat.Stream)
	frontendCtrl := controller.NewFrontendController(cfg.Frontend)

	r := gin.Default()
	r.GET("/healthz", frontendCtrl.Health)
	r.GET("/frontend_settings", frontendCtrl.Settings)

	auth := middleware.Auth(cfg.Auth.JWTSecret)
	r.POST("/conversation", auth, convoCtrl.Conversation)
	r.POST("/history/generate", auth, historyCtrl.Generate)
	r.POST("/history/update", auth, historyCtrl.Update)
	r.POST("/history/read", auth, historyCtrl.Read)
	r.GET("/history/list", auth, historyCtrl.List)
	r.POST("/history/rename", auth, historyCtrl.Rename)
	r.DELETE("/history/delete", auth, historyCtrl.Delete)
	r.POST("/history/message_feedback", auth, historyCtrl.MessageFeedback)

	if err := r.Run(fmt.Sprintf(":%d", cfg.Server.Port)); err != nil {
		log.Fatal().Err(err).Msg("Failed to run server")
	}
}
