/*
Package config loads Hivemon server configuration from a YAML file with
sane defaults and validation.

Precedence is defaults < config file < command-line flags; the flags are
wired in cmd/hivemon and override individual fields after Load returns.
A missing config file is not an error so a bare `hivemon serve
--upstream-url ...` works without any file on disk.

Example config:

	listen: ":8090"
	data_dir: /var/lib/hivemon
	upstream:
	  url: https://pve.example.com:8006
	  token_id: monitor@pve!dashboard
	  secret: 2b1a...
	  request_timeout: 10s
	poll:
	  interval: 5s
	  max_subscribers: 0
	cache:
	  ttl: 4s
	  max_entries: 256
	  sweep_interval: 30s
	log:
	  level: info
	  json: true
*/
package config
