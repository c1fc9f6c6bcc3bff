package validate

// recipeSchema is the JSON Schema every build recipe must satisfy before
// semantic validation runs.
const recipeSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "additionalProperties": false,
  "required": ["image", "target", "base", "systemConfig"],
  "properties": {
    "image": {
      "type": "object",
      "additionalProperties": false,
      "required": ["name"],
      "properties": {
        "name": {"type": "string", "minLength": 1, "pattern": "^[a-z0-9][a-z0-9._-]*$"},
        "version": {"type": "string"}
      }
    },
    "target": {
      "type": "object",
      "additionalProperties": false,
      "required": ["os", "arch"],
      "properties": {
        "os": {"type": "string", "minLength": 1},
        "dist": {"type": "string"},
        "arch": {"type": "string", "enum": ["x86_64", "aarch64", "amd64", "arm64"]},
        "imageType": {"type": "string", "enum": ["oci", "raw"]}
      }
    },
    "base": {
      "type": "object",
      "additionalProperties": false,
      "required": ["rootfsUrl"],
      "properties": {
        "rootfsUrl": {"type": "string", "minLength": 1},
        "sha256": {"type": "string", "pattern": "^[0-9a-fA-F]{64}$"}
      }
    },
    "packageRepositories": {
      "type": "array",
      "items": {
        "type": "object",
        "additionalProperties": false,
        "required": ["codename", "url"],
        "properties": {
          "id": {"type": "string"},
          "codename": {"type": "string", "minLength": 1},
          "url": {"type": "string", "minLength": 1},
          "pkey": {"type": "string"},
          "priority": {"type": "integer", "minimum": 1, "maximum": 1001},
          "component": {"type": "string"}
        }
      }
    },
    "packages": {
      "type": "array",
      "items": {"type": "string", "minLength": 1}
    },
    "python": {
      "type": "object",
      "additionalProperties": false,
      "required": ["requirements"],
      "properties": {
        "requirements": {"type": "string", "minLength": 1},
        "indexUrl": {"type": "string"},
        "interpreter": {"type": "string"}
      }
    },
    "systemConfig": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "name": {"type": "string"},
        "workDir": {"type": "string"},
        "directories": {
          "type": "array",
          "items": {
            "type": "object",
            "additionalProperties": false,
            "required": ["path"],
            "properties": {
              "path": {"type": "string", "minLength": 1},
              "mode": {"type": "string", "pattern": "^0[0-7]{3}$"}
            }
          }
        },
        "additionalFiles": {
          "type": "array",
          "items": {
            "type": "object",
            "additionalProperties": false,
            "required": ["local", "final"],
            "properties": {
              "local": {"type": "string", "minLength": 1},
              "final": {"type": "string", "minLength": 1},
              "mode": {"type": "string", "pattern": "^0[0-7]{3}$"}
            }
          }
        },
        "env": {
          "type": "object",
          "additionalProperties": {"type": "string"}
        },
        "exposedPorts": {
          "type": "array",
          "items": {
            "type": "object",
            "additionalProperties": false,
            "required": ["port"],
            "properties": {
              "port": {"type": "integer", "minimum": 1, "maximum": 65535},
              "protocol": {"type": "string", "enum": ["tcp", "udp"]}
            }
          }
        },
        "entrypoint": {"type": "array", "items": {"type": "string"}},
        "cmd": {"type": "array", "items": {"type": "string"}},
        "users": {
          "type": "array",
          "items": {
            "type": "object",
            "additionalProperties": false,
            "required": ["name"],
            "properties": {
              "name": {"type": "string", "minLength": 1},
              "password": {"type": "string"},
              "uid": {"type": "integer", "minimum": 0},
              "home": {"type": "string"},
              "shell": {"type": "string"}
            }
          }
        },
        "runCommands": {"type": "array", "items": {"type": "string"}}
      }
    }
  }
}`
