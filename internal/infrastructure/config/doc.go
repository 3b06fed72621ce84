// Package config handles loading and validating Lumina Bridge configuration.
//
// Configuration is layered: built-in defaults, then a YAML file, then
// LUMINA_* environment variables. Secrets (static bearer, assertion secret,
// broker password, Influx token) should come from the environment.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.MQTT.TopicPrefix)
package config
