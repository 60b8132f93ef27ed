package main

import (
	"github.com/alphabatem/common/context"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/veridoc-bot/veridoc_api/services"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("No .env file loaded")
	}

	ctx, err := context.NewCtx(
		&services.RedisService{},
		&services.RateLimitService{},
		&services.GithubService{},
		&services.AnalysisService{},
		&services.SearchService{},
		&services.FactCheckService{},
		&services.OrchestratorService{},
		&services.ValidatorService{},
		&services.MonitoringService{},

		&services.HttpService{},
	)
	if err != nil {
		log.Fatal().Err(err)
		return
	}

	err = ctx.Run()
	if err != nil {
		log.Fatal().Err(err)
		return
	}
}
