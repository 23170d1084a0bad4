/*
 * Copyright 2018 The Trickster Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package redis

import (
	"context"
	"time"

	"github.com/trickstercache/tiercache/pkg/cache"

	"github.com/redis/go-redis/v9"
)

type pipeline struct {
	p    redis.Pipeliner
	cmds []redis.Cmder
}

// Pipeline implements cache.Store
func (s *Store) Pipeline() cache.Pipeline {
	return &pipeline{p: s.client.Pipeline()}
}

func (p *pipeline) Set(key string, value []byte, ttl time.Duration, cond cache.Condition) {
	ctx := context.Background()
	var cmd redis.Cmder
	switch cond {
	case cache.ConditionIfAbsent:
		cmd = p.p.SetNX(ctx, key, value, ttl)
	case cache.ConditionIfPresent:
		cmd = p.p.SetXX(ctx, key, value, ttl)
	default:
		cmd = p.p.Set(ctx, key, value, ttl)
	}
	p.cmds = append(p.cmds, cmd)
}

func (p *pipeline) SetAdd(set string, members ...string) {
	p.cmds = append(p.cmds, p.p.SAdd(context.Background(), set, toAny(members)...))
}

func (p *pipeline) SetRemove(set string, members ...string) {
	p.cmds = append(p.cmds, p.p.SRem(context.Background(), set, toAny(members)...))
}

func (p *pipeline) Expire(key string, ttl time.Duration) {
	p.cmds = append(p.cmds, p.p.Expire(context.Background(), key, ttl))
}

// Exec sends the queued commands. Server errors are reported per command;
// a transport failure is returned as the second value.
func (p *pipeline) Exec(ctx context.Context) ([]error, error) {
	if len(p.cmds) == 0 {
		return nil, nil
	}
	_, err := p.p.Exec(ctx)
	if err != nil && !isServerErr(err) {
		return nil, wrapErr("pipeline", err)
	}
	errs := make([]error, len(p.cmds))
	for i, cmd := range p.cmds {
		errs[i] = wrapErr(cmd.Name(), cmd.Err())
	}
	p.cmds = nil
	return errs, nil
}
