package configuration

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/Manzilah-gp/manzilah-web-sub001/internal/db"
	"github.com/Manzilah-gp/manzilah-web-sub001/internal/handler"
	"github.com/Manzilah-gp/manzilah-web-sub001/internal/hub"
	"github.com/Manzilah-gp/manzilah-web-sub001/internal/model"
	"github.com/Manzilah-gp/manzilah-web-sub001/internal/repo"
	"github.com/Manzilah-gp/manzilah-web-sub001/internal/service"
)

type Container struct {
	ChatHandler    handler.ChatHandler
	MonitorHandler handler.MonitorHandler
	Hub            *hub.Hub
	Config         Config
	Logger         *zap.Logger

	// private - for cleanup
	mongoDatabase *mongo.Database
}

func BuildContainer(configPath string) (*Container, error) {
	config, err := LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	con, err := db.OpenConnection(config.ChatDatabase.Uri, config.ChatDatabase.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	messages := db.NewRepository[model.Message](con, config.ChatDatabase.MessagesCollection)
	conversations := db.NewRepository[model.Conversation](con, config.ChatDatabase.ConversationsCollection)
	users := db.NewRepository[model.User](con, config.ChatDatabase.UsersCollection)
	readStates := db.NewRepository[model.ReadState](con, config.ChatDatabase.ReadStatesCollection)

	messageRepo := repo.NewMessageRepository(messages, logger)
	conversationRepo := repo.NewConversationRepository(conversations, readStates, logger)
	userRepo := repo.NewUserRepository(users, logger)

	eventHub := hub.NewHub([]byte(config.Auth.Secret), config.Server.AllowedOrigins, logger)

	chatService := service.NewChatService(conversationRepo, messageRepo, userRepo, eventHub, logger)
	chatHandler := handler.NewChatHandler(chatService)
	monitorHandler := handler.NewMonitorHandler(eventHub)

	return &Container{
		ChatHandler:    chatHandler,
		MonitorHandler: monitorHandler,
		Hub:            eventHub,
		Config:         *config,
		Logger:         logger,
		mongoDatabase:  con,
	}, nil
}

// Close gracefully shuts down all connections
func (c *Container) Close() error {
	// Stop the hub first (closes all WebSocket connections)
	if c.Hub != nil {
		c.Hub.Stop()
	}

	if c.Logger != nil {
		_ = c.Logger.Sync()
	}

	if c.mongoDatabase != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.mongoDatabase.Client().Disconnect(ctx); err != nil {
			return fmt.Errorf("failed to close MongoDB connection: %w", err)
		}
	}

	return nil
}
