package sqlinline

const generationColumns = `id::text, coalesce(owner_id, ''), service, status, prompt, upscale_index,
  coalesce(discord_message_id, ''), coalesce(url, ''), created_at`

const QInsertGeneration = `--sql 4618a2ba-3ac4-4a0e-bbae-ebd9c44c7ee8
insert into generations (id, owner_id, service, status, prompt, upscale_index, discord_message_id, created_at)
values (gen_random_uuid(), $1::text, $2::text, 'unstarted', $3::text, $4::int, nullif($5::text, ''), now())
returning id::text, created_at;
`

const QListGenerationsByStatus = `--sql 158edcbc-1738-4f20-a49d-91a4daa14f8c
select ` + generationColumns + `
from generations
where status = $1::text
order by created_at asc;
`

const QStartUnstartedGenerations = `--sql d382e668-a97e-4e46-94b8-82c6fc99e0e2
update generations
set status = 'started'
where status = 'unstarted'
returning ` + generationColumns + `;
`

// QFinishGeneration finishes the named started generation, or the oldest one
// when $1 is empty.
const QFinishGeneration = `--sql b0e5ac98-e462-49cf-ab31-76a92541ed6f
with target as (
    select id
    from generations
    where status = 'started'
      and ($1::text = '' or id::text = $1::text)
    order by created_at asc
    limit 1
    for update skip locked
)
update generations
set status = 'finished',
    url = $2::text,
    discord_message_id = coalesce(nullif($3::text, ''), discord_message_id)
where id in (select id from target)
returning ` + generationColumns + `;
`

const QCollectFinishedGenerations = `--sql 849d514b-1932-4b88-9342-420ccf5bcb02
update generations
set status = 'mediaGenerated'
where status = 'finished'
returning ` + generationColumns + `;
`

const QQueuedGenerations = `--sql 2e3110e7-e7ee-4384-95b5-1fdfb176f934
select count(*)::int
from generations
where status in ('unstarted', 'started');
`
