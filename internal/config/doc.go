// Package config assembles the megasecretaria settings.
//
// Values are layered, later layers winning:
//
//  1. built-in defaults (Default)
//  2. an optional YAML file (LoadFile)
//  3. environment variables (ApplyEnv), typically loaded from .env
//  4. command-line flags that were explicitly set
//
// The YAML file carries the assistant settings that are awkward as
// environment variables, such as a multi-line persona:
//
//	persona: |
//	  Você é uma secretária virtual...
//	designation: Meu Mestre
//	timezone: America/Sao_Paulo
//	allowed_numbers: ["5511999990000"]
//	history:
//	  limit: 20
//	  token_budget: 1000
//	  retention: 720h
//	  prune_schedule: "@daily"
//	confirmation:
//	  duplicate_window: 2m
//	  pending_ttl: 30m
package config
