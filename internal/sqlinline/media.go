package sqlinline

const mediaColumns = `id::text, owner_id, type, coalesce(file_extension, ''), deleted,
  coalesce(prompt, ''), coalesce(service, ''), coalesce(size, ''), upscale_index,
  coalesce(discord_message_id, ''), coalesce(job_id::text, ''), created_at`

// QInsertMedia returns no row when a live medium already holds the job's
// result.
const QInsertMedia = `--sql 054d1e51-6a49-4f4a-ba13-16594ea9f4f7
insert into media (
  id,
  owner_id,
  type,
  file_extension,
  deleted,
  prompt,
  service,
  size,
  upscale_index,
  discord_message_id,
  job_id,
  created_at
) values (
  gen_random_uuid(),
  $1::text,
  $2::text,
  nullif($3::text, ''),
  false,
  nullif($4::text, ''),
  nullif($5::text, ''),
  nullif($6::text, ''),
  $7::int,
  nullif($8::text, ''),
  nullif($9::text, '')::uuid,
  now()
)
on conflict (job_id) where job_id is not null and not deleted do nothing
returning id::text, created_at;
`

const QSelectMediaByID = `--sql 165114ea-75a8-4a10-b5fd-569484df01d2
select ` + mediaColumns + `
from media
where id = $1::uuid
  and owner_id = $2::text
  and not deleted
limit 1;
`

const QListMediaByOwner = `--sql 83ff25d7-739a-411c-94bc-85c3d0d37928
select ` + mediaColumns + `
from media
where owner_id = $1::text
  and not deleted
order by created_at desc;
`

const QListMediaByIDs = `--sql dfe86ad5-530d-4141-bb64-4a6a6467cfc3
select ` + mediaColumns + `
from media
where owner_id = $1::text
  and id::text = any($2::text[])
  and not deleted
order by created_at desc;
`

const QSoftDeleteMedia = `--sql c58d9dd3-af25-4a1b-ad58-46476ada451b
update media
set deleted = true
where id = $1::uuid
  and owner_id = $2::text;
`

const QMediaTotal = `--sql b94bd98e-6afa-406d-b3f3-4f88677741da
select count(*)::int
from media
where not deleted;
`
