package configuration

import (
	"encoding/json"
	"os"
)

type MongoConfig struct {
	Uri                     string `json:"uri"`
	Database                string `json:"database"`
	MessagesCollection      string `json:"messagesCollection"`
	ConversationsCollection string `json:"conversationsCollection"`
	UsersCollection         string `json:"usersCollection"`
	ReadStatesCollection    string `json:"readStatesCollection"`
}

type ServerConfig struct {
	AppPort        int      `json:"app_port"`
	SocketPort     int      `json:"socket_port"`
	SocketRoute    string   `json:"socket_route"`
	AllowedOrigins []string `json:"allowed_origins"`
}

type AuthConfig struct {
	// Secret is shared with the dashboard auth service that issues tokens.
	Secret string `json:"secret"`
}

type Config struct {
	ChatDatabase MongoConfig  `json:"mongo"`
	Server       ServerConfig `json:"server"`
	Auth         AuthConfig   `json:"auth"`
}

func LoadConfig(config_path string) (*Config, error) {
	file, err := os.ReadFile(config_path)
	if err != nil {
		return nil, err
	}

	var config Config
	if err = json.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	if config.ChatDatabase.MessagesCollection == "" {
		config.ChatDatabase.MessagesCollection = "messages"
	}
	if config.ChatDatabase.ConversationsCollection == "" {
		config.ChatDatabase.ConversationsCollection = "conversations"
	}
	if config.ChatDatabase.UsersCollection == "" {
		config.ChatDatabase.UsersCollection = "users"
	}
	if config.ChatDatabase.ReadStatesCollection == "" {
		config.ChatDatabase.ReadStatesCollection = "read_states"
	}
	if config.Server.SocketRoute == "" {
		config.Server.SocketRoute = "ws"
	}

	return &config, nil
}
