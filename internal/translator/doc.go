/*
Package translator turns a natural-language request into a shell command by
asking an OpenAI-compatible chat completions endpoint.

# Overview

Each call renders two prompts from a YAML template bundle: a system prompt
naming the user's shell, and a user prompt carrying the previous command,
its output, and the new request. The first choice of the completion is
cleaned of Markdown fences and returned as the command.

# Transport

	resty (sonic JSON) -> retryablehttp transport -> endpoint
	        ^
	rate limiter, circuit breaker, X-Request-ID

Failures are reported as ErrTranslation; the caller re-prompts and never
runs anything. A missing API key is ErrMissingAPIKey.

# Prompts

The bundle ships embedded; DWIM_PROMPTS points at a replacement with the same
keys:

	system: |
	  ... {{.Shell}} ...
	user: |
	  ... {{.LastCommand}} {{.LastOutput}} {{.Input}} ...
*/
package translator
