package database

type Config struct {
	FilePath string `envconfig:"PARTYROOM_DB_FILE_PATH" default:"partyroom.db"`
}
