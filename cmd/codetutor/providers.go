package main

// Provider blank imports: each import activates a self-registering LLM adapter.

import (
	_ "github.com/Strob0t/CodeTutor/internal/adapter/anthropic"
	_ "github.com/Strob0t/CodeTutor/internal/adapter/openai"
)
